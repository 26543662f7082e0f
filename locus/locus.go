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

// Package locus implements genomic interval arithmetic on closed,
// stranded intervals.
package locus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
)

// Strand is one of '+', '-', or '.' (either strand).
type Strand byte

const (
	Forward Strand = '+'
	Reverse Strand = '-'
	Either  Strand = '.'
)

// ParseStrand parses "+", "-" or ".".
func ParseStrand(s string) (Strand, error) {
	switch s {
	case "+":
		return Forward, nil
	case "-":
		return Reverse, nil
	case ".":
		return Either, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("locus: invalid strand %q", s))
}

// Flip returns the opposite strand. Either is returned unchanged.
func (s Strand) Flip() Strand {
	switch s {
	case Forward:
		return Reverse
	case Reverse:
		return Forward
	}
	return s
}

func (s Strand) String() string { return string(s) }

// Locus is a closed interval [Start, End] on a chromosome.  Start <= End
// always holds for values built by New.
type Locus struct {
	Chrom  string
	Start  int
	End    int
	Strand Strand
}

// New creates a Locus, swapping start and end if they're given in reverse
// order.
func New(chrom string, start, end int, strand Strand) Locus {
	if start > end {
		start, end = end, start
	}
	return Locus{Chrom: chrom, Start: start, End: end, Strand: strand}
}

// Len returns the number of bases covered, inclusive of both ends.
func (l Locus) Len() int {
	return l.End - l.Start + 1
}

// Overlaps checks whether l and o share at least one base on compatible
// strands.
func (l Locus) Overlaps(o Locus) bool {
	if l.Chrom != o.Chrom {
		return false
	}
	if l.Strand != Either && o.Strand != Either && l.Strand != o.Strand {
		return false
	}
	return l.Start <= o.End && o.Start <= l.End
}

// WithChrom returns a copy of l on another chromosome.
func (l Locus) WithChrom(chrom string) Locus {
	l.Chrom = chrom
	return l
}

func (l Locus) String() string {
	return fmt.Sprintf("%s:%d-%d%s", l.Chrom, l.Start, l.End, l.Strand)
}

// ToggleChrPrefix converts "chr4" to "4" and "4" to "chr4".
func ToggleChrPrefix(chrom string) string {
	if strings.HasPrefix(chrom, "chr") {
		return strings.TrimPrefix(chrom, "chr")
	}
	return "chr" + chrom
}

// Union merges overlapping loci. All loci must share one chromosome and
// strand. The result is sorted by start.
func Union(loci []Locus) ([]Locus, error) {
	if len(loci) == 0 {
		return nil, nil
	}
	for _, l := range loci[1:] {
		if l.Chrom != loci[0].Chrom {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("locus.Union: loci on different chromosomes %s, %s", loci[0].Chrom, l.Chrom))
		}
		if l.Strand != loci[0].Strand {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("locus.Union: loci on different strands %v, %v", loci[0], l))
		}
	}
	sorted := append([]Locus(nil), loci...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	union := []Locus{sorted[0]}
	for _, l := range sorted[1:] {
		last := &union[len(union)-1]
		if last.End < l.Start {
			union = append(union, l)
			continue
		}
		if l.End > last.End {
			last.End = l.End
		}
	}
	return union, nil
}
