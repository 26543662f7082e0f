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
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svevidence/encoding/bamprovider"
	"github.com/grailbio/svevidence/insertsize"
	"github.com/grailbio/svevidence/interval"
)

// Sample is one alignment file and its insert-size model.
type Sample struct {
	Name     string
	Provider bamprovider.Provider
	// Stats is built once, before any variant is processed, and is read-only
	// afterwards.
	Stats *insertsize.Stats
}

var sampleNameReplacer = strings.NewReplacer(".bam", "", ".sorted", "", ".sort", "", ".", "_", "+", "_")

// NameFromPath derives a sample name from a BAM path, e.g.
// "/data/na12878.sorted.bam" becomes "na12878".
func NameFromPath(path string) string {
	return sampleNameReplacer.Replace(filepath.Base(path))
}

func (o Opts) sampleOpts(exclude *interval.BEDUnion) insertsize.SampleOpts {
	opts := insertsize.DefaultSampleOpts
	if o.SampleReads > 0 {
		opts.MaxReads = o.SampleReads
	}
	if exclude != nil {
		opts.Exclude = exclude.Clone()
	}
	return opts
}

// NewSample samples the insert-size model of provider. exclude may be nil; it
// is cloned, so concurrent calls may share it.
func NewSample(ctx context.Context, name string, provider bamprovider.Provider, opts Opts, exclude *interval.BEDUnion) (*Sample, error) {
	stats, err := insertsize.Sample(ctx, provider, opts.sampleOpts(exclude))
	if err != nil {
		return nil, errors.E(err, "evidence: sample", name)
	}
	if !opts.SingleEnded && stats.SingleEnded() {
		log.Printf("%s: reads look single-ended; orientation checks disabled", name)
	}
	return &Sample{Name: name, Provider: provider, Stats: stats}, nil
}

// OpenSample opens the indexed BAM file at path and samples its insert-size
// model.
func OpenSample(ctx context.Context, path string, opts Opts, exclude *interval.BEDUnion) (*Sample, error) {
	provider := bamprovider.NewProvider(path)
	if _, err := provider.GetHeader(); err != nil {
		provider.Close() // nolint: errcheck
		return nil, errors.E(err, "evidence.OpenSample", path)
	}
	s, err := NewSample(ctx, NameFromPath(path), provider, opts, exclude)
	if err != nil {
		provider.Close() // nolint: errcheck
		return nil, err
	}
	return s, nil
}

// Close releases the sample's provider.
func (s *Sample) Close() error {
	return s.Provider.Close()
}

// singleEnded reports whether the sample is treated as unpaired.
func (s *Sample) singleEnded(opts Opts) bool {
	return opts.SingleEnded || (s.Stats != nil && s.Stats.SingleEnded())
}
