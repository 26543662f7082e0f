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

// Package disambiguate classifies read pairs as supporting the reference
// allele, the alternate allele, or neither, from their realignments and the
// sample's insert-size model.
package disambiguate

import (
	"fmt"
	"math"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svevidence/alignment"
	"github.com/grailbio/svevidence/insertsize"
	"github.com/grailbio/svevidence/variant"
)

// Reasons recorded with a classification.
const (
	ReasonInsertSize   = "insertSizeScore"
	ReasonOrientation  = "orientation"
	ReasonAlignment    = "alignmentScore"
	ReasonMultimapping = "multimapping"
	ReasonSameScores   = "same_scores"
)

// Opts controls scoring and classification.
type Opts struct {
	// MinInsertSizeScore is the density at or below which a set is invalid.
	MinInsertSizeScore float64
	// AlignmentScoreDelta is the total alignment score difference a set must
	// exceed to win on alignment score alone.
	AlignmentScoreDelta int
	// InsertSizeLogRatio is the |log10(alt/ref)| insert-size density ratio a
	// set must exceed to win on insert size.
	InsertSizeLogRatio float64
	// MultimapScoreDelta flags an alignment as multimapping when its score is
	// within this distance of its secondary score.
	MultimapScoreDelta int
	// AlnQuality is the WellAligned threshold.
	AlnQuality float64
	// Orientations lists the expected pair orientations. Nil, or a list
	// containing insertsize.Any, accepts every orientation.
	Orientations []string
	// SingleEnded disables insert-size scoring.
	SingleEnded bool
}

// DefaultOpts is the default Opts.
var DefaultOpts = Opts{
	MinInsertSizeScore:  0,
	AlignmentScoreDelta: 2,
	InsertSizeLogRatio:  1.0,
	MultimapScoreDelta:  2,
	AlnQuality:          0.8,
}

// logRatioTolerance absorbs floating point error in the insert-size ratio,
// so that a ratio of exactly 10 never exceeds a cutoff of 1.
const logRatioTolerance = 1e-9

// InsertSizeScorer estimates insert-size densities. *insertsize.Stats
// implements it.
type InsertSizeScorer interface {
	Score(isize int) float64
	HasInsertSizeDistribution() bool
}

var _ InsertSizeScorer = (*insertsize.Stats)(nil)

func orientationExpected(orientation string, expected []string) bool {
	if len(expected) == 0 {
		return true
	}
	for _, o := range expected {
		if o == insertsize.Any || o == orientation {
			return true
		}
	}
	return false
}

// Score fills in c.Evidence for every allele set of c.
func Score(c *alignment.Collection, isd InsertSizeScorer, opts Opts) {
	for _, allele := range variant.Alleles {
		set := c.Sets[allele]
		if set == nil {
			continue
		}
		ev := &alignment.Evidence{
			Orientation:    set.Orientation(),
			Valid:          true,
			Multimapping:   set.Multimapping(opts.MultimapScoreDelta),
			AlignmentScore: set.TotalScore(),
		}
		if !opts.SingleEnded && isd != nil && isd.HasInsertSizeDistribution() {
			ev.InsertSizeScore = isd.Score(set.Len())
			ev.HasInsertSize = true
			if ev.InsertSizeScore <= opts.MinInsertSizeScore {
				ev.Valid, ev.Reason = false, ReasonInsertSize
			}
		}
		if !orientationExpected(ev.Orientation, opts.Orientations) {
			ev.Valid, ev.Reason = false, ReasonOrientation
		}
		if !set.WellAligned(opts.AlnQuality) {
			ev.Valid, ev.Reason = false, ReasonAlignment
		}
		c.Evidence[allele] = ev
	}
}

// Disambiguate classifies a scored collection and records the result with
// c.Choose.
func Disambiguate(c *alignment.Collection, opts Opts) (variant.Allele, error) {
	ref, alt := c.Evidence[variant.Ref], c.Evidence[variant.Alt]
	if ref == nil || alt == nil {
		return "", errors.E(errors.Invalid, fmt.Sprintf("disambiguate: %s has not been scored", c.Name))
	}
	label, reason := classify(ref, alt, opts)
	if err := c.Choose(label, reason); err != nil {
		return "", err
	}
	return label, nil
}

func classify(ref, alt *alignment.Evidence, opts Opts) (variant.Allele, string) {
	if ref.Multimapping || alt.Multimapping {
		return variant.Amb, ReasonMultimapping
	}
	switch {
	case alt.Valid && !ref.Valid:
		return variant.Alt, ref.Reason
	case ref.Valid && !alt.Valid:
		return variant.Ref, alt.Reason
	case !ref.Valid && !alt.Valid:
		return variant.Amb, ref.Reason + "_" + alt.Reason
	}
	if alt.AlignmentScore-ref.AlignmentScore > opts.AlignmentScoreDelta {
		return variant.Alt, ReasonAlignment
	}
	if ref.AlignmentScore-alt.AlignmentScore > opts.AlignmentScoreDelta {
		return variant.Ref, ReasonAlignment
	}
	if !opts.SingleEnded && ref.HasInsertSize && alt.HasInsertSize {
		logRatio := math.Log10(alt.InsertSizeScore / ref.InsertSizeScore)
		if logRatio-opts.InsertSizeLogRatio > logRatioTolerance {
			return variant.Alt, ReasonInsertSize
		}
		if -logRatio-opts.InsertSizeLogRatio > logRatioTolerance {
			return variant.Ref, ReasonInsertSize
		}
	}
	return variant.Amb, ReasonSameScores
}

// Counts holds the number of read pairs per label.
type Counts map[variant.Allele]int

// Batch scores and classifies every collection, single-threaded, and returns
// the per-label counts.
func Batch(collections []*alignment.Collection, isd InsertSizeScorer, opts Opts) (Counts, error) {
	start := time.Now()
	for _, c := range collections {
		Score(c, isd, opts)
	}
	counts := Counts{variant.Ref: 0, variant.Alt: 0, variant.Amb: 0}
	for _, c := range collections {
		label, err := Disambiguate(c, opts)
		if err != nil {
			return nil, err
		}
		counts[label]++
	}
	log.Debug.Printf("disambiguate: %d read pairs in %v", len(collections), time.Since(start))
	return counts, nil
}
