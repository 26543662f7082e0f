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

package variant

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svevidence/biosimd"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/svevidence/locus"
)

// Names of the sequence sources a Segment can be cut from.
const (
	GenomeSource    = "genome"
	InsertionSource = "insertion"
	RepeatsSource   = "repeats"
)

// Segment is a piece of an allele sequence: the closed interval [Start, End]
// of sequence Chrom in the named Source. ID identifies the segment's role
// across alleles; merged segments carry IDs of the form "0_1".
type Segment struct {
	Chrom  string
	Start  int
	End    int
	Strand locus.Strand
	ID     string
	Source string
}

// NewSegment creates a Segment, swapping start and end if they're given in
// reverse order.
func NewSegment(chrom string, start, end int, strand locus.Strand, id, source string) Segment {
	if start > end {
		start, end = end, start
	}
	return Segment{Chrom: chrom, Start: start, End: end, Strand: strand, ID: id, Source: source}
}

// Len returns End-Start. Note that this is one less than the number of bases
// the segment materializes to; relative breakpoints are measured with it.
func (s Segment) Len() int {
	if s.End < s.Start {
		return s.Start - s.End
	}
	return s.End - s.Start
}

func (s Segment) String() string {
	return fmt.Sprintf("<Segment %s %s:%d-%d%s (%s)>", s.ID, s.Chrom, s.Start, s.End, s.Strand, s.Source)
}

// materialize cuts the segment out of src. The interval is clamped to the
// bounds of the sequence, "-" segments are reverse-complemented, and the
// result is upper-cased.
func (s Segment) materialize(src fasta.Fasta) (string, error) {
	n, err := src.Len(s.Chrom)
	if err != nil {
		return "", errors.E(errors.NotExist, err, "variant: materialize", s.String())
	}
	start, end := s.Start, s.End+1
	if start < 0 {
		start = 0
	}
	if end > int(n) {
		end = int(n)
	}
	if end <= start {
		return "", nil
	}
	seq, err := src.Get(s.Chrom, uint64(start), uint64(end))
	if err != nil {
		return "", errors.E(err, "variant: materialize", s.String())
	}
	if s.Strand == locus.Reverse {
		seq = biosimd.ReverseCompString(seq)
	}
	return strings.ToUpper(seq), nil
}

// MergedSegments merges runs of adjacent segments that share chromosome,
// strand, and source, and whose coordinates are contiguous.
func MergedSegments(segments []Segment) []Segment {
	if len(segments) <= 1 {
		return segments
	}
	merged := []Segment{segments[0]}
	for _, s := range segments[1:] {
		last := &merged[len(merged)-1]
		if last.Chrom == s.Chrom && last.Strand == s.Strand && last.Source == s.Source && last.End == s.Start-1 {
			*last = NewSegment(last.Chrom, last.Start, s.End, s.Strand, last.ID+"_"+s.ID, last.Source)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
