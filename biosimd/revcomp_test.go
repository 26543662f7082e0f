// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd_test

import (
	"math/rand"
	"testing"

	"github.com/grailbio/svevidence/biosimd"
	"github.com/grailbio/testutil/expect"
)

var revComp8RandTable = [...]byte{
	'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n'}

func TestReverseCompString(t *testing.T) {
	expect.EQ(t, biosimd.ReverseCompString(""), "")
	expect.EQ(t, biosimd.ReverseCompString("A"), "T")
	expect.EQ(t, biosimd.ReverseCompString("ACGTN"), "NACGT")
	expect.EQ(t, biosimd.ReverseCompString("aacgX"), "NCGTT")
}

func TestReverseComp8(t *testing.T) {
	maxSize := 300
	for iter := 0; iter < 200; iter++ {
		n := rand.Intn(maxSize)
		src := make([]byte, n)
		for i := range src {
			src[i] = revComp8RandTable[rand.Intn(len(revComp8RandTable))]
		}
		dst := make([]byte, n)
		biosimd.ReverseComp8(dst, src)

		expect.EQ(t, biosimd.ReverseCompString(string(src)), string(dst))

		// Reverse complement is an involution on uppercase ACGTN.
		back := make([]byte, n)
		biosimd.ReverseComp8(back, dst)
		twice := make([]byte, n)
		biosimd.ReverseComp8(twice, back)
		expect.EQ(t, string(twice), string(dst))
	}
}

func TestIsDegenerateOnly(t *testing.T) {
	expect.False(t, biosimd.IsDegenerateOnly(nil))
	expect.True(t, biosimd.IsDegenerateOnly([]byte("NNNN")))
	expect.True(t, biosimd.IsDegenerateOnly([]byte("NnN")))
	expect.False(t, biosimd.IsDegenerateOnly([]byte("NNAN")))
}
