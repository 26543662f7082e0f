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

package evidence

import (
	"context"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/svevidence/disambiguate"
	"github.com/grailbio/svevidence/insertsize"
	"github.com/grailbio/svevidence/matepair"
	"github.com/grailbio/svevidence/realign"
	"gopkg.in/yaml.v2"
)

// Opts configures the evidence pipeline. Fields left at zero are derived
// from the samples where noted.
type Opts struct {
	// Preset names a library preset: "mate-pair", "pacbio" or "moleculo".
	Preset string `yaml:"preset"`
	// MinMapq and PairMinMapq are passed to the mate-pair collector.
	MinMapq     int `yaml:"min-mapq"`
	PairMinMapq int `yaml:"pair-min-mapq"`
	// SearchDistance is how far from the breakpoints reads are collected.
	// If 0, it is twice the largest mean insert size, or 1000.
	SearchDistance int `yaml:"search-distance"`
	// AlignDistance is the flank length of the allele sequences. If 0, it is
	// the largest of the search distance, twice the mean insert size and the
	// 99th percentile read length.
	AlignDistance int `yaml:"align-distance"`
	// AlnQuality is the fraction of the best possible score an alignment
	// needs to be well aligned.
	AlnQuality float64 `yaml:"aln-quality"`
	// Orientation is a comma-separated list of expected orientations, e.g.
	// "+-", "rf" or "any". If empty, it is inferred per sample.
	Orientation          string `yaml:"orientation"`
	SingleEnded          bool   `yaml:"single-ended"`
	IncludeSupplementary bool   `yaml:"include-supplementary"`
	// MaxReads aborts a variant whose search regions hold more reads.
	MaxReads int `yaml:"max-reads"`
	// Processes is the number of realignment jobs; 0 means the number of
	// physical cores.
	Processes int `yaml:"processes"`
	// ExcludeBED masks regions when sampling insert sizes.
	ExcludeBED string `yaml:"exclude-bed"`
	// SampleReads caps the number of pairs sampled for the insert-size model.
	SampleReads int `yaml:"sample-reads"`

	MinInsertSizeScore  float64 `yaml:"min-insert-size-score"`
	AlignmentScoreDelta int     `yaml:"alignment-score-delta"`
	InsertSizeLogRatio  float64 `yaml:"insert-size-log-ratio"`
	MultimapScoreDelta  int     `yaml:"multimap-score-delta"`
}

// DefaultOpts sets the default values for Opts.
var DefaultOpts = Opts{
	MinMapq:             matepair.DefaultOpts.MinMapq,
	AlnQuality:          disambiguate.DefaultOpts.AlnQuality,
	Processes:           realign.DefaultOpts.Parallelism,
	SampleReads:         insertsize.DefaultSampleOpts.MaxReads,
	MinInsertSizeScore:  disambiguate.DefaultOpts.MinInsertSizeScore,
	AlignmentScoreDelta: disambiguate.DefaultOpts.AlignmentScoreDelta,
	InsertSizeLogRatio:  disambiguate.DefaultOpts.InsertSizeLogRatio,
	MultimapScoreDelta:  disambiguate.DefaultOpts.MultimapScoreDelta,
}

// Presets lists the names accepted by ApplyPreset.
var Presets = []string{"mate-pair", "pacbio", "moleculo"}

const presetSearchDistance = 1000

// ApplyPreset adjusts o for a library type. An empty name is a no-op.
func (o *Opts) ApplyPreset(name string) error {
	switch name {
	case "":
		return nil
	case "mate-pair":
		o.Orientation = "-+"
	case "pacbio":
		o.SingleEnded = true
		o.AlnQuality = 0.65
	case "moleculo":
		o.SingleEnded = true
		o.AlnQuality = 0.85
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("evidence: unknown preset %q; must be one of %s", name, strings.Join(Presets, ", ")))
	}
	if o.SearchDistance == 0 {
		o.SearchDistance = presetSearchDistance
	}
	o.Preset = name
	return nil
}

var orientationLabels = map[string]bool{"+-": true, "-+": true, "++": true, "--": true}

// ParseOrientations parses a comma-separated orientation list. "f" and "r"
// stand for "+" and "-". An empty string, or any element equal to "any",
// yields nil, which accepts every orientation.
func ParseOrientations(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var orientations []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(strings.ToLower(o))
		if o == insertsize.Any {
			return nil, nil
		}
		o = strings.NewReplacer("f", "+", "r", "-").Replace(o)
		if !orientationLabels[o] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("evidence: bad orientation %q in %q", o, s))
		}
		orientations = append(orientations, o)
	}
	return orientations, nil
}

// Validate checks o for configuration errors.
func (o Opts) Validate() error {
	if _, err := ParseOrientations(o.Orientation); err != nil {
		return err
	}
	if o.AlnQuality <= 0 || o.AlnQuality > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("evidence: aln-quality %v must be in (0, 1]", o.AlnQuality))
	}
	if o.SearchDistance < 0 || o.AlignDistance < 0 {
		return errors.E(errors.Invalid, "evidence: distances must not be negative")
	}
	return nil
}

// LoadOpts reads YAML options from path on top of base. A preset named in
// the file is applied first, so explicit values in the file override it.
func LoadOpts(ctx context.Context, path string, base Opts) (opts Opts, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return base, errors.E(err, "evidence.LoadOpts", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return base, errors.E(err, "evidence.LoadOpts", path)
	}
	var preset struct {
		Preset string `yaml:"preset"`
	}
	if err = yaml.Unmarshal(data, &preset); err != nil {
		return base, errors.E(errors.Invalid, err, "evidence.LoadOpts", path)
	}
	opts = base
	if err = opts.ApplyPreset(preset.Preset); err != nil {
		return base, err
	}
	if err = yaml.UnmarshalStrict(data, &opts); err != nil {
		return base, errors.E(errors.Invalid, err, "evidence.LoadOpts", path)
	}
	return opts, opts.Validate()
}

func (o Opts) collectorOpts(singleEnded bool) matepair.Opts {
	opts := matepair.DefaultOpts
	opts.MinMapq = o.MinMapq
	opts.PairMinMapq = o.PairMinMapq
	opts.SingleEnded = singleEnded
	opts.IncludeSupplementary = o.IncludeSupplementary
	opts.MaxReads = o.MaxReads
	return opts
}

func (o Opts) realignOpts() realign.Opts {
	opts := realign.DefaultOpts
	opts.Parallelism = o.Processes
	return opts
}

// disambiguateOpts returns the classifier options for a sample. Expected
// orientations come from o.Orientation when set, else from the sample's
// model.
func (o Opts) disambiguateOpts(stats *insertsize.Stats, singleEnded bool) (disambiguate.Opts, error) {
	opts := disambiguate.Opts{
		MinInsertSizeScore:  o.MinInsertSizeScore,
		AlignmentScoreDelta: o.AlignmentScoreDelta,
		InsertSizeLogRatio:  o.InsertSizeLogRatio,
		MultimapScoreDelta:  o.MultimapScoreDelta,
		AlnQuality:          o.AlnQuality,
		SingleEnded:         singleEnded,
	}
	if singleEnded {
		return opts, nil
	}
	if o.Orientation != "" {
		orientations, err := ParseOrientations(o.Orientation)
		if err != nil {
			return opts, err
		}
		opts.Orientations = orientations
	} else if stats != nil {
		opts.Orientations = stats.Orientations
	}
	return opts, nil
}
