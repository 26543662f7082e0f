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

// Package variant describes candidate structural variants and synthesizes
// the local reference and alternate allele sequences that reads are
// realigned against.
package variant

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/svevidence/locus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Allele names a synthesized sequence.
type Allele string

const (
	Ref Allele = "ref"
	Alt Allele = "alt"
	// Amb is the label for reads that support neither allele. Its segments
	// are those of Ref.
	Amb Allele = "amb"
)

// Alleles lists the alleles reads are realigned against.
var Alleles = []Allele{Ref, Alt}

// Kind is the type of a structural variant.
type Kind int

const (
	Deletion Kind = iota
	Insertion
	Inversion
	MobileElementInsertion
)

func (k Kind) String() string {
	switch k {
	case Deletion:
		return "Deletion"
	case Insertion:
		return "Insertion"
	case Inversion:
		return "Inversion"
	case MobileElementInsertion:
		return "MobileElementInsertion"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Variant is a candidate structural variant together with everything needed
// to build its allele sequences. Create one with NewDeletion, NewInsertion,
// NewInversion, NewMEI or Parse.
type Variant struct {
	Kind Kind
	// Breakpoints, sorted by start.
	Breakpoints []locus.Locus
	// AlignDistance is the length of the flanking sequence added on both sides
	// of the event.
	AlignDistance int
	// Sources maps a Segment's source name to its sequences.
	Sources map[string]fasta.Fasta

	// Region is the affected interval of an insertion (possibly a single base)
	// or an inversion.
	Region locus.Locus
	// InsertSeq is the inserted sequence of an insertion.
	InsertSeq string
	// Inserted is the inserted element of a mobile element insertion, as a
	// locus in the repeats source.
	Inserted locus.Locus

	mu   sync.Mutex
	seqs map[Allele]string
}

func newVariant(kind Kind, breakpoints []locus.Locus, alignDistance int, genome fasta.Fasta) *Variant {
	sorted := append([]locus.Locus(nil), breakpoints...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return &Variant{
		Kind:          kind,
		Breakpoints:   sorted,
		AlignDistance: alignDistance,
		Sources:       map[string]fasta.Fasta{GenomeSource: genome},
		seqs:          map[Allele]string{},
	}
}

// NewDeletion creates a deletion of the bases between 0-based positions first
// and second, inclusive.
func NewDeletion(chrom string, first, second, alignDistance int, genome fasta.Fasta) *Variant {
	return newVariant(Deletion, []locus.Locus{
		locus.New(chrom, first, first, locus.Forward),
		locus.New(chrom, second, second, locus.Forward),
	}, alignDistance, genome)
}

// NewInsertion creates an insertion of seq. If region covers a single base,
// seq is inserted before it; otherwise region is replaced by seq.
func NewInsertion(region locus.Locus, seq string, alignDistance int, genome fasta.Fasta) *Variant {
	v := newVariant(Insertion, []locus.Locus{region}, alignDistance, genome)
	v.Region = region
	v.InsertSeq = seq
	v.Sources[InsertionSource] = fasta.NewFromSeqs(map[string]string{InsertionSource: seq})
	return v
}

// NewInversion creates an inversion of region.
func NewInversion(region locus.Locus, alignDistance int, genome fasta.Fasta) *Variant {
	v := newVariant(Inversion, []locus.Locus{
		locus.New(region.Chrom, region.Start, region.Start, locus.Forward),
		locus.New(region.Chrom, region.End, region.End, locus.Forward),
	}, alignDistance, genome)
	v.Region = region
	return v
}

// NewMEI creates a mobile element insertion at breakpoint. inserted names the
// element's interval within repeats.
func NewMEI(breakpoint, inserted locus.Locus, repeats fasta.Fasta, alignDistance int, genome fasta.Fasta) *Variant {
	v := newVariant(MobileElementInsertion, []locus.Locus{breakpoint}, alignDistance, genome)
	v.Inserted = inserted
	v.Sources[RepeatsSource] = repeats
	return v
}

// Chrom returns the chromosome of the first breakpoint.
func (v *Variant) Chrom() string {
	return v.Breakpoints[0].Chrom
}

func genomeSegment(chrom string, start, end int, strand locus.Strand, id string) Segment {
	return NewSegment(chrom, start, end, strand, id, GenomeSource)
}

// Segments returns the pieces that make up the given allele, in order.
func (v *Variant) Segments(allele Allele) ([]Segment, error) {
	if allele != Ref && allele != Alt && allele != Amb {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("variant: unknown allele %q", allele))
	}
	isAlt := allele == Alt
	d := v.AlignDistance
	chrom := v.Chrom()
	switch v.Kind {
	case Deletion:
		b0, b1 := v.Breakpoints[0], v.Breakpoints[len(v.Breakpoints)-1]
		left := genomeSegment(chrom, b0.Start-d, b0.Start-1, locus.Forward, "0")
		right := genomeSegment(chrom, b1.End+1, b1.End+d, locus.Forward, "2")
		if isAlt {
			return []Segment{left, right}, nil
		}
		return []Segment{left, genomeSegment(chrom, b0.Start, b1.End, locus.Forward, "1"), right}, nil
	case Insertion:
		r := v.Region
		offset := 0
		if r.Len() > 1 {
			offset = 1
		}
		left := genomeSegment(chrom, r.Start-d, r.Start-1, locus.Forward, "0")
		right := genomeSegment(chrom, r.End+offset, r.End+d, locus.Forward, "2")
		if isAlt {
			return []Segment{
				left,
				NewSegment(InsertionSource, 0, len(v.InsertSeq), locus.Forward, "1", InsertionSource),
				right,
			}, nil
		}
		segments := []Segment{left}
		if r.Len() > 1 {
			segments = append(segments, genomeSegment(chrom, r.Start, r.End, locus.Forward, "3"))
		}
		return append(segments, right), nil
	case Inversion:
		r := v.Region
		strand := locus.Forward
		if isAlt {
			strand = locus.Reverse
		}
		return []Segment{
			genomeSegment(chrom, r.Start-d, r.Start-1, locus.Forward, "0"),
			genomeSegment(chrom, r.Start, r.End, strand, "1"),
			genomeSegment(chrom, r.End+1, r.End+d, locus.Forward, "2"),
		}, nil
	case MobileElementInsertion:
		b := v.Breakpoints[0]
		left := genomeSegment(chrom, b.Start-d, b.Start-1, locus.Forward, "0")
		right := genomeSegment(chrom, b.End, b.End+d, locus.Forward, "2")
		if isAlt {
			m := v.Inserted
			return []Segment{left, NewSegment(m.Chrom, m.Start, m.End, m.Strand, "1", RepeatsSource), right}, nil
		}
		return []Segment{left, right}, nil
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("variant: unknown kind %v", v.Kind))
}

// Seq returns the sequence of the given allele. It is computed on first use
// and cached. Seq is thread-safe.
func (v *Variant) Seq(allele Allele) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seq, ok := v.seqs[allele]; ok {
		return seq, nil
	}
	segments, err := v.Segments(allele)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, s := range segments {
		src, ok := v.Sources[s.Source]
		if !ok {
			return "", errors.E(errors.NotExist, fmt.Sprintf("variant: no sequence source %q", s.Source))
		}
		seq, err := s.materialize(src)
		if err != nil {
			return "", err
		}
		sb.WriteString(seq)
	}
	if v.seqs == nil {
		v.seqs = map[Allele]string{}
	}
	v.seqs[allele] = sb.String()
	return v.seqs[allele], nil
}

// Len returns the length of the allele's sequence.
func (v *Variant) Len(allele Allele) (int, error) {
	seq, err := v.Seq(allele)
	return len(seq), err
}

// RelativeBreakpoints returns the positions within the allele sequence where
// one segment ends and the next begins.
func (v *Variant) RelativeBreakpoints(allele Allele) ([]int, error) {
	segments, err := v.Segments(allele)
	if err != nil {
		return nil, err
	}
	var (
		breakpoints []int
		pos         int
	)
	for _, s := range segments[:len(segments)-1] {
		pos += s.Len()
		breakpoints = append(breakpoints, pos)
	}
	return breakpoints, nil
}

// SearchRegions returns the genomic regions reads supporting either allele
// are expected to map to.
func (v *Variant) SearchRegions(searchDistance int) []locus.Locus {
	chrom := v.Chrom()
	if v.Kind == Inversion {
		r := v.Region
		regions, err := locus.Union([]locus.Locus{
			locus.New(chrom, r.Start-searchDistance, r.Start+searchDistance, locus.Forward),
			locus.New(chrom, r.End-searchDistance, r.End+searchDistance, locus.Forward),
		})
		if err != nil {
			log.Panicf("variant: search regions of %v: %v", v, err)
		}
		return regions
	}
	first, last := v.Breakpoints[0], v.Breakpoints[len(v.Breakpoints)-1]
	return []locus.Locus{locus.New(chrom, first.Start-searchDistance, last.End+searchDistance, locus.Forward)}
}

// ShortName returns a compact name suitable for file names, e.g.
// "del_chr1_999".
func (v *Variant) ShortName() string {
	prefix := "mei"
	if v.Kind != MobileElementInsertion {
		prefix = strings.ToLower(v.Kind.String()[:3])
	}
	return fmt.Sprintf("%s_%s_%d", prefix, v.Chrom(), v.Breakpoints[0].Start)
}

var printer = message.NewPrinter(language.English)

func (v *Variant) String() string {
	first, last := v.Breakpoints[0], v.Breakpoints[len(v.Breakpoints)-1]
	switch v.Kind {
	case Deletion:
		return printer.Sprintf("%v::%s:%d-%d(%d)", v.Kind, first.Chrom, first.Start, last.End, last.End-first.Start)
	case Inversion:
		return printer.Sprintf("%v::%s:%d-%d", v.Kind, v.Region.Chrom, v.Region.Start, v.Region.End)
	case Insertion:
		return printer.Sprintf("%v::%s:%d;len=%d", v.Kind, first.Chrom, first.Start, len(v.InsertSeq))
	case MobileElementInsertion:
		return fmt.Sprintf("%v::%s(%v);%d", v.Kind, v.Inserted.Chrom, first, v.AlignDistance)
	}
	return v.Kind.String()
}
