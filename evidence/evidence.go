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

// Package evidence runs the read-evidence pipeline for one structural
// variant over a set of samples: collect the reads near the breakpoints,
// realign them against the reference and alternate alleles, and classify
// every read pair.
package evidence

import (
	"context"
	"math"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svevidence/alignment"
	"github.com/grailbio/svevidence/disambiguate"
	"github.com/grailbio/svevidence/matepair"
	"github.com/grailbio/svevidence/realign"
	"github.com/grailbio/svevidence/variant"
)

// Labels lists the classifications in report order.
var Labels = []variant.Allele{variant.Alt, variant.Ref, variant.Amb}

// SampleResult holds the classified read pairs of one sample.
type SampleResult struct {
	Sample      string
	Collections []*alignment.Collection
	Counts      disambiguate.Counts
	// Reasons counts classifications per label and reason.
	Reasons            map[variant.Allele]map[string]int
	SupplementaryFound bool
	MissingMates       int
}

// Result holds the evidence for one variant.
type Result struct {
	Variant *variant.Variant
	Samples []*SampleResult
}

// Total sums the counts of all samples.
func (r *Result) Total() disambiguate.Counts {
	total := disambiguate.Counts{}
	for _, label := range Labels {
		total[label] = 0
	}
	for _, s := range r.Samples {
		for label, n := range s.Counts {
			total[label] += n
		}
	}
	return total
}

// Distances returns the search distance and the align distance for opts and
// samples. See Opts.SearchDistance and Opts.AlignDistance.
func Distances(opts Opts, samples []*Sample) (searchDistance, alignDistance int) {
	var meanInsert, readQuantile float64
	for _, s := range samples {
		if s.Stats == nil {
			continue
		}
		if m, ok := s.Stats.MeanInsertSize(); ok {
			meanInsert = math.Max(meanInsert, m)
		}
		if q, ok := s.Stats.ReadLengthUpperQuantile(); ok {
			readQuantile = math.Max(readQuantile, q)
		}
	}
	searchDistance = opts.SearchDistance
	if searchDistance == 0 {
		searchDistance = presetSearchDistance
		if meanInsert > 0 {
			searchDistance = int(2 * meanInsert)
		}
	}
	alignDistance = opts.AlignDistance
	if alignDistance == 0 {
		alignDistance = searchDistance
		if d := int(2 * meanInsert); d > alignDistance {
			alignDistance = d
		}
		if d := int(math.Ceil(readQuantile)); d > alignDistance {
			alignDistance = d
		}
	}
	return searchDistance, alignDistance
}

// RunSample collects, realigns and classifies the reads of one sample around
// v.
func RunSample(ctx context.Context, v *variant.Variant, s *Sample, searchDistance int, opts Opts) (*SampleResult, error) {
	singleEnded := s.singleEnded(opts)
	start := time.Now()
	reads, err := matepair.GetReads(ctx, s.Provider, v.SearchRegions(searchDistance), opts.collectorOpts(singleEnded))
	if err != nil {
		return nil, errors.E(err, "evidence: collect", s.Name, v.String())
	}
	if reads.SupplementaryFound {
		log.Error.Printf("%s: supplementary alignments (flag 0x800) found and skipped; "+
			"they may hold missing portions of reads, consider including them", s.Name)
	}
	log.Printf("%s: %d reads found near %s", s.Name, len(reads.Reads), v)
	log.Debug.Printf("%s: collected reads in %v", s.Name, time.Since(start))

	start = time.Now()
	collections, err := realign.RealignVariant(ctx, v, reads.Reads, opts.realignOpts())
	if err != nil {
		return nil, errors.E(err, "evidence: realign", s.Name, v.String())
	}
	log.Debug.Printf("%s: realigned in %v", s.Name, time.Since(start))

	dopts, err := opts.disambiguateOpts(s.Stats, singleEnded)
	if err != nil {
		return nil, err
	}
	var isd disambiguate.InsertSizeScorer
	if s.Stats != nil {
		isd = s.Stats
	}
	counts, err := disambiguate.Batch(collections, isd, dopts)
	if err != nil {
		return nil, errors.E(err, "evidence: disambiguate", s.Name, v.String())
	}
	result := &SampleResult{
		Sample:             s.Name,
		Collections:        collections,
		Counts:             counts,
		Reasons:            map[variant.Allele]map[string]int{},
		SupplementaryFound: reads.SupplementaryFound,
		MissingMates:       reads.MissingMates,
	}
	for _, c := range collections {
		label, reason := c.Label()
		if result.Reasons[label] == nil {
			result.Reasons[label] = map[string]int{}
		}
		result.Reasons[label][reason]++
	}
	log.Printf("%s: alt %d, ref %d, amb %d", s.Name, counts[variant.Alt], counts[variant.Ref], counts[variant.Amb])
	return result, nil
}

// Run processes v over every sample. v should be built with the align
// distance returned by Distances. When a sample's search regions hold more
// than opts.MaxReads reads, matepair.IsTooManyReads(err) holds and the caller
// should skip the variant.
func Run(ctx context.Context, v *variant.Variant, samples []*Sample, opts Opts) (*Result, error) {
	searchDistance, _ := Distances(opts, samples)
	result := &Result{Variant: v}
	for _, s := range samples {
		r, err := RunSample(ctx, v, s, searchDistance, opts)
		if err != nil {
			return nil, err
		}
		result.Samples = append(result.Samples, r)
	}
	total := result.Total()
	log.Printf("%s: total alt %d, ref %d, amb %d", v.ShortName(), total[variant.Alt], total[variant.Ref], total[variant.Amb])
	return result, nil
}
