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

// Package realign aligns reads against the allele sequences of a variant in
// parallel and keeps the best placement of every read.
package realign

import (
	"context"
	"sort"
	"time"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/svevidence/alignment"
	"github.com/grailbio/svevidence/biosimd"
	"github.com/grailbio/svevidence/locus"
	"github.com/grailbio/svevidence/realign/ssw"
	"github.com/grailbio/svevidence/variant"
	"github.com/minio/highwayhash"
)

// Opts controls realignment.
type Opts struct {
	// Parallelism is the number of concurrent alignment jobs. If 0, the number
	// of physical cores is used.
	Parallelism int
	// Scoring is the alignment scoring scheme. The zero value means
	// ssw.DefaultScoring.
	Scoring ssw.Scoring
}

// DefaultOpts sets the default values for Opts.
var DefaultOpts = Opts{
	Parallelism: 0,
	Scoring:     ssw.DefaultScoring,
}

type seqKey = [highwayhash.Size]uint8

var zeroSeed [32]byte

// mapping is the best alignment of one sequence against one part.
type mapping struct {
	ok     bool
	strand locus.Strand
	result ssw.Result
}

// bestStrand aligns seq and its reverse complement, preferring the forward
// strand on ties.
func bestStrand(a *ssw.Aligner, seq, revSeq string) mapping {
	fwd, fwdOK := a.Align(seq)
	rev, revOK := a.Align(revSeq)
	switch {
	case fwdOK && (!revOK || fwd.Score >= rev.Score):
		return mapping{ok: true, strand: locus.Forward, result: fwd}
	case revOK:
		return mapping{ok: true, strand: locus.Reverse, result: rev}
	}
	return mapping{}
}

// chooseBest picks the highest-scoring part for rec. The secondary score is
// the larger of the chosen alignment's own secondary score and the best score
// against any other part. It returns nil if rec aligns nowhere.
func chooseBest(rec *sam.Record, seq string, names []string, parts map[string]string, mappings []mapping) *alignment.Alignment {
	best := -1
	for i, m := range mappings {
		if m.ok && (best < 0 || m.result.Score > mappings[best].result.Score) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	chosen := mappings[best]
	secondScore := chosen.result.Score2
	for i, m := range mappings {
		if i != best && m.ok && m.result.Score > secondScore {
			secondScore = m.result.Score
		}
	}
	strand := chosen.strand
	if strand == locus.Reverse {
		seq = biosimd.ReverseCompString(seq)
	}
	if rec.Flags&sam.Reverse != 0 {
		strand = strand.Flip()
	}
	part := parts[names[best]]
	return &alignment.Alignment{
		Name:      rec.Name,
		Part:      names[best],
		Start:     chosen.result.RefBegin,
		End:       chosen.result.RefEnd,
		Strand:    strand,
		Seq:       seq,
		Cigar:     chosen.result.Cigar,
		Score:     chosen.result.Score,
		GenomeSeq: part[chosen.result.RefBegin : chosen.result.RefEnd+1],
		Score2:    secondScore,
		Mapq:      int(rec.MapQ),
	}
}

// filterDegenerate drops records whose bases are all 'N'.
func filterDegenerate(reads []*sam.Record) ([]*sam.Record, [][]byte) {
	kept := make([]*sam.Record, 0, len(reads))
	seqs := make([][]byte, 0, len(reads))
	for _, r := range reads {
		seq := r.Seq.Expand()
		if biosimd.IsDegenerateOnly(seq) {
			continue
		}
		kept = append(kept, r)
		seqs = append(seqs, seq)
	}
	if n := len(reads) - len(kept); n > 0 {
		log.Printf("realign: removed %d reads with only degenerate nucleotides ('N')", n)
	}
	return kept, seqs
}

// Realign aligns every read against every named part and returns, per read
// name, the set of best alignments of the reads with that name.
//
// Identical read sequences are aligned once. Work is split across
// opts.Parallelism jobs, each owning one aligner per part.
func Realign(ctx context.Context, parts map[string]string, reads []*sam.Record, opts Opts) (map[string]*alignment.Set, error) {
	if opts.Scoring == (ssw.Scoring{}) {
		opts.Scoring = ssw.DefaultScoring
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = PhysicalCores()
	}
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	reads, seqs := filterDegenerate(reads)
	var (
		uniqueIdx = make(map[seqKey]int, len(reads))
		readIdx   = make([]int, len(reads))
		unique    []string
	)
	for i, seq := range seqs {
		key := highwayhash.Sum(seq, zeroSeed[:])
		idx, ok := uniqueIdx[key]
		if !ok {
			idx = len(unique)
			uniqueIdx[key] = idx
			unique = append(unique, gunsafe.BytesToString(seq))
		}
		readIdx[i] = idx
	}

	nUnique := len(unique)
	if parallelism > nUnique {
		parallelism = nUnique
	}
	results := make([][]mapping, nUnique)
	start := time.Now()
	if nUnique > 0 {
		err := traverse.Each(parallelism, func(jobIdx int) error {
			startIdx := (jobIdx * nUnique) / parallelism
			endIdx := ((jobIdx + 1) * nUnique) / parallelism
			// One aligner per part, in sorted part-name order.
			aligners := make([]*ssw.Aligner, len(names))
			for i, name := range names {
				aligners[i] = ssw.NewAligner(parts[name], opts.Scoring)
			}
			for u := startIdx; u < endIdx; u++ {
				seq := unique[u]
				revSeq := biosimd.ReverseCompString(seq)
				m := make([]mapping, len(aligners))
				for i, a := range aligners {
					m[i] = bestStrand(a, seq, revSeq)
				}
				results[u] = m
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	log.Debug.Printf("realign: %d reads (%d unique) against %v in %v", len(reads), nUnique, names, time.Since(start))

	sets := make(map[string]*alignment.Set)
	nUnaligned := 0
	for i, rec := range reads {
		aln := chooseBest(rec, unique[readIdx[i]], names, parts, results[readIdx[i]])
		if aln == nil {
			nUnaligned++
			continue
		}
		set, ok := sets[rec.Name]
		if !ok {
			set = &alignment.Set{}
			sets[rec.Name] = set
		}
		set.Add(aln)
	}
	if nUnaligned > 0 {
		log.Printf("realign: %d reads did not align to %v", nUnaligned, names)
	}
	return sets, ctx.Err()
}

// RealignVariant realigns reads against the ref allele and then the alt
// allele of v, and pairs the results per read name. Read names that align to
// only one allele are dropped. The result is sorted by name.
func RealignVariant(ctx context.Context, v *variant.Variant, reads []*sam.Record, opts Opts) ([]*alignment.Collection, error) {
	start := time.Now()
	bySet := make(map[variant.Allele]map[string]*alignment.Set, len(variant.Alleles))
	for _, allele := range variant.Alleles {
		seq, err := v.Seq(allele)
		if err != nil {
			return nil, err
		}
		sets, err := Realign(ctx, map[string]string{string(allele): seq}, reads, opts)
		if err != nil {
			return nil, err
		}
		bySet[allele] = sets
	}
	log.Debug.Printf("realign: time for realigning %v: %v", v, time.Since(start))

	refSets, altSets := bySet[variant.Ref], bySet[variant.Alt]
	names := make([]string, 0, len(refSets))
	for name := range refSets {
		if _, ok := altSets[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	collections := make([]*alignment.Collection, len(names))
	for i, name := range names {
		c := alignment.NewCollection(name)
		c.AddSet(variant.Ref, refSets[name])
		c.AddSet(variant.Alt, altSets[name])
		collections[i] = c
	}
	return collections, nil
}
