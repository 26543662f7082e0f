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

// Package alignment holds the results of realigning reads against the
// alleles of a variant, and the per-read-pair evidence derived from them.
package alignment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/svevidence/locus"
	"github.com/grailbio/svevidence/variant"
)

// Alignment is the best mapping of one read against one allele.
type Alignment struct {
	// Name is the read name.
	Name string
	// Part names the allele sequence the read was aligned to.
	Part string
	// Start and End are 0-based inclusive coordinates within Part.
	Start int
	End   int
	// Strand is relative to the original read orientation.
	Strand locus.Strand
	// Seq is the read sequence, reverse-complemented if the read aligned to
	// the reverse strand of Part.
	Seq   string
	Cigar sam.Cigar
	Score int
	// GenomeSeq is Part[Start:End+1].
	GenomeSeq string
	// Score2 is the best score of any other placement of the read.
	Score2 int
	// Mapq is the mapping quality in the source alignment file.
	Mapq int
}

// Pretty renders the alignment in the style of BLAST: the read, a match
// line, and the allele sequence.  In the match line, '|' is a match, '*' a
// mismatch, 'x' a deletion, and '#' an inserted or clipped read base.
func (a *Alignment) Pretty() string {
	var seqOut, matches, genomeOut strings.Builder
	seqPos, genomePos := 0, 0
	for _, op := range a.Cigar {
		for k := 0; k < op.Len(); k++ {
			switch op.Type() {
			case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
				s, g := a.Seq[seqPos], a.GenomeSeq[genomePos]
				seqOut.WriteByte(s)
				genomeOut.WriteByte(g)
				if s == g {
					matches.WriteByte('|')
				} else {
					matches.WriteByte('*')
				}
				seqPos++
				genomePos++
			case sam.CigarDeletion:
				seqOut.WriteByte('-')
				genomeOut.WriteByte(a.GenomeSeq[genomePos])
				matches.WriteByte('x')
				genomePos++
			case sam.CigarInsertion, sam.CigarSoftClipped, sam.CigarHardClipped:
				seqOut.WriteByte(a.Seq[seqPos])
				genomeOut.WriteByte('-')
				matches.WriteByte('#')
				seqPos++
			}
		}
	}
	return "READ:  " + seqOut.String() + "\n       " + matches.String() + "\nGENOME:" + genomeOut.String()
}

func (a *Alignment) String() string {
	return fmt.Sprintf("%s %s:%d-%d%s %v score=%d score2=%d", a.Name, a.Part, a.Start, a.End, a.Strand, a.Cigar, a.Score, a.Score2)
}

// Set holds the alignments of the reads of one pair against one allele,
// sorted by start.
type Set struct {
	alignments []*Alignment
	// Start is the smallest start and End the largest end of any alignment.
	Start int
	End   int
}

// Add adds an alignment to the set.
func (s *Set) Add(a *Alignment) {
	s.alignments = append(s.alignments, a)
	sort.SliceStable(s.alignments, func(i, j int) bool { return s.alignments[i].Start < s.alignments[j].Start })
	if len(s.alignments) == 1 || a.Start < s.Start {
		s.Start = a.Start
	}
	if len(s.alignments) == 1 || a.End > s.End {
		s.End = a.End
	}
}

// Alignments returns the alignments sorted by start. The caller must not
// modify the result.
func (s *Set) Alignments() []*Alignment { return s.alignments }

// Len returns the span of the set, End-Start+1. For a read pair this is the
// insert size implied by the alignment.
func (s *Set) Len() int { return s.End - s.Start + 1 }

// TotalScore is the sum of the alignment scores.
func (s *Set) TotalScore() int {
	total := 0
	for _, a := range s.alignments {
		total += a.Score
	}
	return total
}

// WellAligned checks that every alignment reaches a score of at least
// threshold times its best possible score.
func (s *Set) WellAligned(threshold float64) bool {
	for _, a := range s.alignments {
		if float64(a.Score)/2 < threshold*float64(len(a.Seq)) {
			return false
		}
	}
	return true
}

// Orientation concatenates the strands of the alignments in start order,
// e.g. "+-".
func (s *Set) Orientation() string {
	buf := make([]byte, len(s.alignments))
	for i, a := range s.alignments {
		buf[i] = byte(a.Strand)
	}
	return string(buf)
}

// Multimapping checks whether any alignment's score is within delta of its
// secondary score.
func (s *Set) Multimapping(delta int) bool {
	for _, a := range s.alignments {
		if a.Score-a.Score2 <= delta {
			return true
		}
	}
	return false
}

// Evidence is the outcome of scoring one Set.
type Evidence struct {
	// InsertSizeScore is the insert-size density of the set's span. It is
	// meaningful only if HasInsertSize is set.
	InsertSizeScore float64
	HasInsertSize   bool
	AlignmentScore  int
	Orientation     string
	Valid           bool
	// Reason names the failed check when Valid is false.
	Reason       string
	Multimapping bool
}

// Collection holds the alignment sets of one read pair against every allele,
// their evidence, and the final classification.
type Collection struct {
	Name     string
	Sets     map[variant.Allele]*Set
	Evidence map[variant.Allele]*Evidence

	chosen bool
	label  variant.Allele
	reason string
}

// NewCollection creates an empty collection for the named read pair.
func NewCollection(name string) *Collection {
	return &Collection{
		Name:     name,
		Sets:     map[variant.Allele]*Set{},
		Evidence: map[variant.Allele]*Evidence{},
	}
}

// AddSet records the alignments against allele.
func (c *Collection) AddSet(allele variant.Allele, s *Set) {
	c.Sets[allele] = s
}

// Choose records the classification. It may be called once, with one of
// variant.Ref, variant.Alt and variant.Amb.
func (c *Collection) Choose(label variant.Allele, reason string) error {
	if c.chosen {
		return errors.E(errors.Invalid, fmt.Sprintf("alignment: %s already classified as %s", c.Name, c.label))
	}
	if label != variant.Ref && label != variant.Alt && label != variant.Amb {
		return errors.E(errors.Invalid, fmt.Sprintf("alignment: invalid label %q for %s", label, c.Name))
	}
	c.chosen, c.label, c.reason = true, label, reason
	return nil
}

// Chosen reports whether Choose has succeeded.
func (c *Collection) Chosen() bool { return c.chosen }

// Label returns the classification and its reason. It is empty until Choose
// succeeds.
func (c *Collection) Label() (variant.Allele, string) { return c.label, c.reason }
