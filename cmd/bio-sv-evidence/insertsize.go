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

package main

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svevidence/evidence"
	"github.com/grailbio/svevidence/insertsize"
	cli "github.com/urfave/cli/v2"
)

func printStats(s *evidence.Sample) {
	st := s.Stats
	labels := make([]string, 0, len(st.OrientationCounts))
	for label := range st.OrientationCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	fmt.Printf("%s\n", s.Name)
	for _, label := range labels {
		fmt.Printf("  orientation %-8s %d\n", label, st.OrientationCounts[label])
	}
	fmt.Printf("  expected orientations: %s\n", st.OrientationString())
	if mean, ok := st.MeanInsertSize(); ok {
		sd, _ := st.StddevInsertSize()
		fmt.Printf("  insert size: n=%d mean=%.1f stddev=%.1f\n", len(st.InsertSizes), mean, sd)
	} else {
		fmt.Printf("  insert size: only %d samples, need more than %d\n", len(st.InsertSizes), insertsize.MinSamples)
	}
	if mean, ok := st.MeanReadLength(); ok {
		sd, _ := st.StddevReadLength()
		q, _ := st.ReadLengthUpperQuantile()
		fmt.Printf("  read length: mean=%.1f stddev=%.1f p99=%.0f\n", mean, sd, q)
	}
	fmt.Printf("  NM rate: %.4f (%.4f)\n", st.MeanNM, st.StddevNM)
	fmt.Printf("  indel rate: %.4f (%.4f)\n", st.MeanIndel, st.StddevIndel)
}

func runInsertSize(c *cli.Context) error {
	ctx := vcontext.Background()
	opts, err := optsFromFlags(ctx, c)
	if err != nil {
		return err
	}
	samples, err := openSamples(ctx, c, opts)
	if err != nil {
		return err
	}
	defer closeSamples(samples)
	for _, s := range samples {
		printStats(s)
	}
	search, align := evidence.Distances(opts, samples)
	fmt.Printf("search distance %d, align distance %d\n", search, align)
	return nil
}

func insertSizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "insertsize",
		Usage: "Report the sampled insert-size and orientation model of BAM files",
		Flags: append([]cli.Flag{
			&cli.StringSliceFlag{Name: "bam", Aliases: []string{"b"}, Required: true, Usage: "Indexed BAM file; may be repeated"},
		}, optionFlags()...),
		Action: runInsertSize,
	}
}
