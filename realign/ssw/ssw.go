// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ssw implements local (Smith-Waterman) alignment with affine gap
// penalties. Besides the optimal alignment it reports a suboptimal score, the
// best score ending at a reference position away from the optimal one, which
// callers use to detect reads that align equally well to several places.
package ssw

import (
	"github.com/biogo/hts/sam"
)

// Scoring holds alignment penalties. All values are positive; mismatch and
// gap values are subtracted. A gap of length k costs GapOpen+(k-1)*GapExtend.
type Scoring struct {
	Match     int
	Mismatch  int
	GapOpen   int
	GapExtend int
}

// DefaultScoring is the scoring scheme used for realignment.
var DefaultScoring = Scoring{
	Match:     2,
	Mismatch:  2,
	GapOpen:   3,
	GapExtend: 1,
}

// Result describes an optimal local alignment. Coordinates are 0-based and
// inclusive.
type Result struct {
	Score int
	// Score2 is the best score among alignments whose reference end lies more
	// than max(len(read)/2, 15) bases from RefEnd. It is 0 if there is none.
	Score2    int
	RefBegin  int
	RefEnd    int
	ReadBegin int
	ReadEnd   int
	// Cigar describes the alignment of the whole read, with unaligned read
	// ends soft-clipped.
	Cigar sam.Cigar
}

// Traceback bits. The low two bits say where H came from; the next two say
// whether E and F extended a gap.
const (
	fromZero byte = 0
	fromDiag byte = 1
	fromE    byte = 2
	fromF    byte = 3
	hMask    byte = 3
	eExtend  byte = 4
	fExtend  byte = 8
)

const negInf = -1 << 30

// Aligner aligns reads against one reference sequence. It keeps scratch
// buffers between calls, so an Aligner must not be used concurrently.
type Aligner struct {
	ref     []byte
	scoring Scoring

	hPrev, hCur []int32
	// f holds the vertical gap score of each column for the current row.
	f         []int32
	colMax    []int32
	colMaxRow []int32
	// trace covers only the band that ends at the optimal cell.
	trace []byte
}

// NewAligner creates an aligner for ref.
func NewAligner(ref string, scoring Scoring) *Aligner {
	n := len(ref)
	a := &Aligner{
		ref:       []byte(ref),
		scoring:   scoring,
		hPrev:     make([]int32, n+1),
		hCur:      make([]int32, n+1),
		f:         make([]int32, n+1),
		colMax:    make([]int32, n+1),
		colMaxRow: make([]int32, n+1),
	}
	for i := range a.ref {
		a.ref[i] = upper(a.ref[i])
	}
	return a
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func (a *Aligner) score(x, y byte) int32 {
	if x == 'N' || y == 'N' {
		return 0
	}
	if x == y {
		return int32(a.scoring.Match)
	}
	return -int32(a.scoring.Mismatch)
}

// fill runs the recurrence for read against ref, recording the best score
// of each column in colMax and colMaxRow. If trace is non-nil, it receives
// one byte per cell, (len(read)+1) rows of len(ref)+1 columns.
func (a *Aligner) fill(ref []byte, read string, trace []byte) {
	m, n := len(read), len(ref)
	width := n + 1
	hPrev, hCur, fCol := a.hPrev[:width], a.hCur[:width], a.f[:width]
	colMax, colMaxRow := a.colMax[:width], a.colMaxRow[:width]
	for j := range hPrev {
		hPrev[j] = 0
		fCol[j] = negInf
		colMax[j] = 0
		colMaxRow[j] = 0
	}
	open, extend := int32(a.scoring.GapOpen), int32(a.scoring.GapExtend)
	for i := 1; i <= m; i++ {
		q := upper(read[i-1])
		var row []byte
		if trace != nil {
			row = trace[i*width : (i+1)*width]
			row[0] = fromZero
		}
		hCur[0] = 0
		eRow := int32(negInf)
		for j := 1; j <= n; j++ {
			var t byte
			// Horizontal gap: consumes reference.
			eOpen, eExt := hCur[j-1]-open, eRow-extend
			if eExt > eOpen {
				eRow = eExt
				t |= eExtend
			} else {
				eRow = eOpen
			}
			// Vertical gap: consumes read.
			fOpen, fExt := hPrev[j]-open, fCol[j]-extend
			if fExt > fOpen {
				fCol[j] = fExt
				t |= fExtend
			} else {
				fCol[j] = fOpen
			}
			h, src := int32(0), fromZero
			if d := hPrev[j-1] + a.score(q, ref[j-1]); d > h {
				h, src = d, fromDiag
			}
			if eRow > h {
				h, src = eRow, fromE
			}
			if fCol[j] > h {
				h, src = fCol[j], fromF
			}
			hCur[j] = h
			if row != nil {
				row[j] = t | src
			}
			if h > colMax[j] {
				colMax[j] = h
				colMaxRow[j] = int32(i)
			}
		}
		hPrev, hCur = hCur, hPrev
	}
}

// maxRefSpan bounds the reference length of any positive-scoring alignment
// that consumes readLen read bases.
func (a *Aligner) maxRefSpan(readLen int) int {
	gapCost := a.scoring.GapExtend
	if a.scoring.GapOpen < gapCost {
		gapCost = a.scoring.GapOpen
	}
	if gapCost <= 0 {
		return len(a.ref)
	}
	return readLen + readLen*a.scoring.Match/gapCost + 1
}

// Align computes the optimal local alignment of read against the reference.
// It returns false if no positive-scoring alignment exists.
//
// Scores are computed in memory linear in the reference length. The
// traceback is then recomputed over a band that ends at the optimal cell.
func (a *Aligner) Align(read string) (Result, bool) {
	m, n := len(read), len(a.ref)
	if m == 0 || n == 0 {
		return Result{}, false
	}
	a.fill(a.ref, read, nil)

	bestCol := 0
	for j := 1; j <= n; j++ {
		if a.colMax[j] > a.colMax[bestCol] {
			bestCol = j
		}
	}
	best := int(a.colMax[bestCol])
	if best <= 0 {
		return Result{}, false
	}
	bestRow := int(a.colMaxRow[bestCol])

	minDist := m / 2
	if minDist < 15 {
		minDist = 15
	}
	score2 := 0
	for j := 1; j <= n; j++ {
		if j-bestCol > minDist || bestCol-j > minDist {
			if int(a.colMax[j]) > score2 {
				score2 = int(a.colMax[j])
			}
		}
	}

	lo := bestCol - a.maxRefSpan(bestRow)
	if lo < 0 {
		lo = 0
	}
	width := bestCol - lo + 1
	if cap(a.trace) < (bestRow+1)*width {
		a.trace = make([]byte, (bestRow+1)*width)
	}
	trace := a.trace[:(bestRow+1)*width]
	a.fill(a.ref[lo:bestCol], read[:bestRow], trace)

	// Trace back from the best cell.
	var ops []sam.CigarOpType
	i, j := bestRow, bestCol-lo
	state := fromDiag
traceback:
	for i > 0 && j > 0 {
		t := trace[i*width+j]
		switch state {
		case fromE:
			ops = append(ops, sam.CigarDeletion)
			j--
			if t&eExtend == 0 {
				state = fromDiag
			}
		case fromF:
			ops = append(ops, sam.CigarInsertion)
			i--
			if t&fExtend == 0 {
				state = fromDiag
			}
		default:
			switch t & hMask {
			case fromZero:
				break traceback
			case fromDiag:
				ops = append(ops, sam.CigarMatch)
				i--
				j--
			case fromE:
				state = fromE
			case fromF:
				state = fromF
			}
		}
	}
	r := Result{
		Score:     best,
		Score2:    score2,
		RefBegin:  lo + j,
		RefEnd:    bestCol - 1,
		ReadBegin: i,
		ReadEnd:   bestRow - 1,
	}
	r.Cigar = buildCigar(ops, r.ReadBegin, m-bestRow)
	return r, true
}

// buildCigar turns traceback operations, collected from the alignment end
// backwards, into a CIGAR with the given soft clips.
func buildCigar(reversed []sam.CigarOpType, leadClip, trailClip int) sam.Cigar {
	var cigar sam.Cigar
	push := func(t sam.CigarOpType, n int) {
		if n == 0 {
			return
		}
		if k := len(cigar) - 1; k >= 0 && cigar[k].Type() == t {
			cigar[k] = sam.NewCigarOp(t, cigar[k].Len()+n)
			return
		}
		cigar = append(cigar, sam.NewCigarOp(t, n))
	}
	push(sam.CigarSoftClipped, leadClip)
	for k := len(reversed) - 1; k >= 0; k-- {
		push(reversed[k], 1)
	}
	push(sam.CigarSoftClipped, trailClip)
	return cigar
}
