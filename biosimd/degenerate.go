// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd

// IsDegenerateOnly returns true iff ascii8 is nonempty and every byte is 'N'
// or 'n'.
func IsDegenerateOnly(ascii8 []byte) bool {
	if len(ascii8) == 0 {
		return false
	}
	for _, b := range ascii8 {
		if b|0x20 != 'n' {
			return false
		}
	}
	return true
}
