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

package insertsize

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svevidence/encoding/bamprovider"
	"github.com/grailbio/svevidence/interval"
)

// SampleOpts controls Sample.
type SampleOpts struct {
	// RegionStart and RegionEnd bound the sampled window on every
	// reference. References not longer than RegionStart are skipped.
	RegionStart, RegionEnd int
	// MinMapq is the minimum mapping quality of a sampled read1.
	MinMapq int
	// MaxReads stops sampling once this many pairs have been kept.
	MaxReads int
	// MaxUnpaired and MinPaired define the single-ended bail out: sampling
	// stops once more than MaxUnpaired unpaired reads were seen while fewer
	// than MinPaired pairs were kept.
	MaxUnpaired, MinPaired int
	// Exclude, if non-nil, masks regions whose records are skipped. It must
	// not be shared with a concurrent Sample call; see BEDUnion.Clone.
	Exclude *interval.BEDUnion
}

// DefaultSampleOpts is the default SampleOpts.
var DefaultSampleOpts = SampleOpts{
	RegionStart: 2500000,
	RegionEnd:   50000000,
	MinMapq:     40,
	MaxReads:    50000,
	MaxUnpaired: 2500,
	MinPaired:   1000,
}

type sampler struct {
	opts         SampleOpts
	inserts      []int
	readLengths  []int
	orientations Counts
	nm, indels   []float64
	kept         int
}

// nmTag is the edit distance aux tag.
var nmTag = sam.NewTag("NM")

func auxInt(aux sam.Aux) (int, bool) {
	switch v := aux.Value().(type) {
	case int8:
		return int(v), true
	case uint8:
		return int(v), true
	case int16:
		return int(v), true
	case uint16:
		return int(v), true
	case int32:
		return int(v), true
	case uint32:
		return int(v), true
	}
	return 0, false
}

// add processes one record. It returns false when sampling should stop.
func (s *sampler) add(rec *sam.Record) bool {
	n := rec.Seq.Length
	if n > 0 {
		if aux := rec.AuxFields.Get(nmTag); aux != nil {
			if nm, ok := auxInt(aux); ok {
				s.nm = append(s.nm, float64(nm)/float64(n))
			}
		}
		if len(rec.Cigar) > 0 {
			indels := 0
			for _, op := range rec.Cigar {
				if t := op.Type(); t == sam.CigarInsertion || t == sam.CigarDeletion {
					indels++
				}
			}
			s.indels = append(s.indels, float64(indels)/float64(n))
		}
	}
	if s.orientations[Unpaired] > s.opts.MaxUnpaired && s.kept < s.opts.MinPaired {
		return false
	}
	if rec.Flags&sam.Paired == 0 {
		s.orientations[Unpaired]++
		s.readLengths = append(s.readLengths, n)
		return true
	}
	if rec.Flags&sam.Read1 == 0 || rec.Flags&sam.ProperPair == 0 {
		return true
	}
	if rec.Flags&(sam.Unmapped|sam.MateUnmapped) != 0 {
		return true
	}
	if rec.Ref == nil || rec.MateRef == nil || rec.Ref.ID() != rec.MateRef.ID() {
		return true
	}
	if int(rec.MapQ) < s.opts.MinMapq {
		return true
	}
	isize := rec.TempLen
	if isize < 0 {
		isize = -isize
	}
	s.inserts = append(s.inserts, isize)
	rev, mateRev := rec.Flags&sam.Reverse != 0, rec.Flags&sam.MateReverse != 0
	if rec.Pos > rec.MatePos {
		rev, mateRev = !rev, !mateRev
	}
	s.orientations[OrientationLabel(rev, mateRev)]++
	s.readLengths = append(s.readLengths, n)
	s.kept++
	return s.kept <= s.opts.MaxReads
}

// Sample reads pairs from the provider's long references and builds the
// sample's Stats.
func Sample(ctx context.Context, provider bamprovider.Provider, opts SampleOpts) (*Stats, error) {
	header, err := provider.GetHeader()
	if err != nil {
		return nil, errors.E(err, "insertsize.Sample: read header")
	}
	var refs []*sam.Reference
	for _, ref := range header.Refs() {
		if ref.Len() > opts.RegionStart {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name() < refs[j].Name() })

	s := &sampler{opts: opts, orientations: Counts{}}
	done := false
	for _, ref := range refs {
		if done {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter := provider.NewIterator(bamprovider.Region{Ref: ref, Start: opts.RegionStart, End: opts.RegionEnd})
		for iter.Scan() {
			rec := iter.Record()
			if opts.Exclude != nil && opts.Exclude.ContainsByName(ref.Name(), interval.PosType(rec.Pos)) {
				continue
			}
			if !s.add(rec) {
				done = true
				break
			}
		}
		if err := iter.Close(); err != nil {
			return nil, errors.E(err, fmt.Sprintf("insertsize.Sample: %s", ref.Name()))
		}
	}
	log.Printf("insertsize: orientation counts +-:%d -+:%d ++:%d --:%d unpaired:%d",
		s.orientations["+-"], s.orientations["-+"], s.orientations["++"], s.orientations["--"], s.orientations[Unpaired])

	stats := New(s.inserts, s.readLengths, s.orientations)
	if len(s.nm) > 0 {
		stats.MeanNM, stats.StddevNM = mean(s.nm), stddev(s.nm)
	}
	if len(s.indels) > 0 {
		stats.MeanIndel, stats.StddevIndel = mean(s.indels), stddev(s.indels)
	}
	log.Debug.Printf("insertsize: NM %.4f±%.4f, indels %.4f±%.4f", stats.MeanNM, stats.StddevNM, stats.MeanIndel, stats.StddevIndel)
	if mu, ok := stats.MeanInsertSize(); ok && !math.IsNaN(mu) {
		sd, _ := stats.StddevInsertSize()
		log.Printf("insertsize: %d insert sizes, mean %.1f, stddev %.1f, orientations %s",
			len(stats.InsertSizes), mu, sd, stats.OrientationString())
	}
	return stats, nil
}
