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

// Package insertsize models the insert sizes and read-pair orientations of a
// sample, and scores how likely an observed insert size is.
package insertsize

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
)

// Orientation labels. A pair's orientation is the strand of the leftmost
// read followed by the strand of its mate.
const (
	Unpaired = "unpaired"
	// Any accepts every orientation.
	Any = "any"
)

// OrientationLabel renders a (reverse, mate reverse) pair as "+-", "-+",
// "++" or "--".
func OrientationLabel(reverse, mateReverse bool) string {
	strand := func(rev bool) byte {
		if rev {
			return '-'
		}
		return '+'
	}
	return string([]byte{strand(reverse), strand(mateReverse)})
}

// Counts holds the number of sampled pairs per orientation label, plus the
// number of unpaired reads under Unpaired.
type Counts map[string]int

// ChooseOrientation picks the expected orientations from sampled counts.
// Categories are ranked by count, with ties broken by label. The most
// frequent is kept, then each next category is kept while the last kept
// count is less than twice its count. If the most frequent category is
// Unpaired, or nothing was observed, the result is [Any].
func ChooseOrientation(counts Counts) []string {
	var ranked []string
	for label, n := range counts {
		if n > 0 {
			ranked = append(ranked, label)
		}
	}
	if len(ranked) == 0 {
		return []string{Any}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if ranked[0] == Unpaired {
		return []string{Any}
	}
	chosen := ranked[:1]
	for _, candidate := range ranked[1:] {
		if counts[chosen[len(chosen)-1]] >= 2*counts[candidate] {
			break
		}
		chosen = append(chosen, candidate)
	}
	return append([]string(nil), chosen...)
}

// DefaultOutlierMultiple is the default m for RemoveOutliers.
const DefaultOutlierMultiple = 10.0

// RemoveOutliers drops values whose distance above the median exceeds m
// median absolute deviations. Only the upper tail is trimmed. If the median
// absolute deviation is 0, every value is kept.
func RemoveOutliers(data []int, m float64) []int {
	if len(data) == 0 {
		return nil
	}
	f := toFloats(data)
	med := median(f)
	dev := make([]float64, len(f))
	for i, v := range f {
		dev[i] = math.Abs(v - med)
	}
	mad := median(dev)
	if mad == 0 {
		return append([]int(nil), data...)
	}
	kept := make([]int, 0, len(data))
	for i, v := range f {
		if (v-med)/mad < m {
			kept = append(kept, data[i])
		}
	}
	return kept
}

// MinSamples is the number of insert sizes (and of read lengths) a sample
// needs, exclusive, before its distribution is used.
const MinSamples = 1000

// Stats summarizes the reads of one sample. Score is safe for concurrent use.
type Stats struct {
	// InsertSizes holds the sampled absolute insert sizes, outliers removed.
	InsertSizes []int
	// ReadLengths holds the sampled read lengths.
	ReadLengths []int
	// OrientationCounts holds the sampled orientation counts.
	OrientationCounts Counts
	// Orientations is the expected orientation set, or [Any].
	Orientations []string
	// MeanNM and StddevNM describe the NM tag divided by read length.
	MeanNM, StddevNM float64
	// MeanIndel and StddevIndel describe the number of I and D CIGAR
	// operations divided by read length.
	MeanIndel, StddevIndel float64

	mu     sync.Mutex
	kde    *kde
	scores map[int]float64
}

// New builds Stats from raw insert sizes, read lengths and orientation
// counts. Outliers are removed from inserts, and the expected orientations
// are chosen from the counts.
func New(inserts, readLengths []int, orientations Counts) *Stats {
	absInserts := make([]int, len(inserts))
	for i, v := range inserts {
		if v < 0 {
			v = -v
		}
		absInserts[i] = v
	}
	s := &Stats{
		InsertSizes:       RemoveOutliers(absInserts, DefaultOutlierMultiple),
		ReadLengths:       readLengths,
		OrientationCounts: orientations,
		Orientations:      ChooseOrientation(orientations),
		MeanNM:            math.NaN(),
		StddevNM:          math.NaN(),
		MeanIndel:         math.NaN(),
		StddevIndel:       math.NaN(),
		scores:            map[int]float64{},
	}
	if !s.HasInsertSizeDistribution() {
		log.Printf("insertsize: only %d insert sizes sampled; insert-size evidence disabled", len(s.InsertSizes))
	}
	return s
}

// HasInsertSizeDistribution reports whether enough insert sizes were sampled
// to score insert sizes.
func (s *Stats) HasInsertSizeDistribution() bool {
	return len(s.InsertSizes) > MinSamples
}

// HasReadLengthDistribution reports whether enough read lengths were
// sampled.
func (s *Stats) HasReadLengthDistribution() bool {
	return len(s.ReadLengths) > MinSamples
}

// SingleEnded reports whether unpaired reads dominated the sample.
func (s *Stats) SingleEnded() bool {
	return s.OrientationCounts[Unpaired] > 0 && len(s.Orientations) == 1 && s.Orientations[0] == Any
}

// Score returns the estimated density of insert size |isize|. It is 0 if the
// sample has no insert-size distribution. Results are cached per size.
func (s *Stats) Score(isize int) float64 {
	if !s.HasInsertSizeDistribution() {
		return 0
	}
	if isize < 0 {
		isize = -isize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.scores[isize]; ok {
		return v
	}
	if s.kde == nil {
		s.kde = newKDE(s.InsertSizes)
	}
	if s.scores == nil {
		s.scores = map[int]float64{}
	}
	v := s.kde.density(float64(isize))
	s.scores[isize] = v
	return v
}

// MeanInsertSize returns the mean insert size, if there is a distribution.
func (s *Stats) MeanInsertSize() (float64, bool) {
	if !s.HasInsertSizeDistribution() {
		return 0, false
	}
	return mean(toFloats(s.InsertSizes)), true
}

// StddevInsertSize returns the standard deviation of the insert sizes, if
// there is a distribution.
func (s *Stats) StddevInsertSize() (float64, bool) {
	if !s.HasInsertSizeDistribution() {
		return 0, false
	}
	return stddev(toFloats(s.InsertSizes)), true
}

// MeanReadLength returns the mean read length, if enough were sampled.
func (s *Stats) MeanReadLength() (float64, bool) {
	if !s.HasReadLengthDistribution() {
		return 0, false
	}
	return mean(toFloats(s.ReadLengths)), true
}

// StddevReadLength returns the standard deviation of read lengths, if
// enough were sampled.
func (s *Stats) StddevReadLength() (float64, bool) {
	if !s.HasReadLengthDistribution() {
		return 0, false
	}
	return stddev(toFloats(s.ReadLengths)), true
}

// ReadLengthUpperQuantile returns the 99th percentile of read lengths, if
// enough were sampled.
func (s *Stats) ReadLengthUpperQuantile() (float64, bool) {
	if !s.HasReadLengthDistribution() {
		return 0, false
	}
	return percentile(toFloats(s.ReadLengths), 99), true
}

// OrientationString joins the expected orientations with commas.
func (s *Stats) OrientationString() string {
	return strings.Join(s.Orientations, ",")
}
