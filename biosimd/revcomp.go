// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd

import (
	gunsafe "github.com/grailbio/base/unsafe"
)

// revComp8Table maps 'A'/'a' to 'T', 'C'/'c' to 'G', 'G'/'g' to 'C',
// 'T'/'t' to 'A', and every other byte to 'N'.
var revComp8Table = func() (t [256]byte) {
	for i := range t {
		t[i] = 'N'
	}
	for _, p := range [...][2]byte{{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'}} {
		t[p[0]] = p[1]
		t[p[0]|0x20] = p[1]
	}
	return
}()

// ReverseComp8 writes the reverse-complement of src[] to dst[].
//
// It panics if len(dst) != len(src).
func ReverseComp8(dst, src []byte) {
	nByte := len(src)
	if len(dst) != nByte {
		panic("ReverseComp8 requires len(dst) == len(src).")
	}
	for idx, invIdx := 0, nByte-1; idx != nByte; idx, invIdx = idx+1, invIdx-1 {
		dst[idx] = revComp8Table[src[invIdx]]
	}
}

// ReverseCompString returns the reverse complement of seq as a new string.
func ReverseCompString(seq string) string {
	buf := make([]byte, len(seq))
	ReverseComp8(buf, gunsafe.StringToBytes(seq))
	return gunsafe.BytesToString(buf)
}
