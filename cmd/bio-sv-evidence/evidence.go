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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svevidence/encoding/fasta"
	"github.com/grailbio/svevidence/evidence"
	"github.com/grailbio/svevidence/interval"
	"github.com/grailbio/svevidence/matepair"
	"github.com/grailbio/svevidence/variant"
	cli "github.com/urfave/cli/v2"
)

func optionFlags() []cli.Flag {
	d := evidence.DefaultOpts
	return []cli.Flag{
		&cli.StringFlag{Name: "opts", Usage: "YAML file with pipeline options"},
		&cli.StringFlag{Name: "preset", Usage: "Library preset: mate-pair, pacbio or moleculo"},
		&cli.IntFlag{Name: "min-mapq", Value: d.MinMapq, Usage: "Minimum mapping quality of collected reads"},
		&cli.IntFlag{Name: "pair-min-mapq", Value: d.PairMinMapq, Usage: "Drop read pairs whose best mapping quality is below this; 0 disables"},
		&cli.IntFlag{Name: "search-dist", Value: d.SearchDistance, Usage: "Distance from the breakpoints to collect reads; 0 = twice the mean insert size"},
		&cli.IntFlag{Name: "align-dist", Value: d.AlignDistance, Usage: "Flank length of the allele sequences; 0 = derived from the samples"},
		&cli.Float64Flag{Name: "aln-quality", Value: d.AlnQuality, Usage: "Fraction of the maximum score an alignment needs to count as well aligned"},
		&cli.StringFlag{Name: "orientation", Value: d.Orientation, Usage: "Expected read pair orientations, e.g. +-, rf or any; default is inferred per sample"},
		&cli.BoolFlag{Name: "single-ended", Value: d.SingleEnded, Usage: "Treat the reads as unpaired"},
		&cli.BoolFlag{Name: "include-supplementary", Value: d.IncludeSupplementary, Usage: "Keep supplementary (0x800) alignments"},
		&cli.IntFlag{Name: "max-reads", Value: d.MaxReads, Usage: "Skip variants with more reads than this near the breakpoints; 0 = unlimited"},
		&cli.IntFlag{Name: "processes", Value: d.Processes, Usage: "Number of realignment jobs; 0 = number of physical cores"},
		&cli.StringFlag{Name: "exclude-bed", Value: d.ExcludeBED, Usage: "BED file of regions to skip when sampling insert sizes"},
		&cli.IntFlag{Name: "sample-reads", Value: d.SampleReads, Usage: "Number of read pairs sampled for the insert-size model"},
	}
}

// optsFromFlags builds the pipeline options: defaults, then the --opts file,
// then --preset, then every flag set on the command line.
func optsFromFlags(ctx context.Context, c *cli.Context) (evidence.Opts, error) {
	opts := evidence.DefaultOpts
	if path := c.String("opts"); path != "" {
		var err error
		if opts, err = evidence.LoadOpts(ctx, path, opts); err != nil {
			return opts, err
		}
	}
	if err := opts.ApplyPreset(c.String("preset")); err != nil {
		return opts, err
	}
	setInt := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	setInt("min-mapq", &opts.MinMapq)
	setInt("pair-min-mapq", &opts.PairMinMapq)
	setInt("search-dist", &opts.SearchDistance)
	setInt("align-dist", &opts.AlignDistance)
	setInt("max-reads", &opts.MaxReads)
	setInt("processes", &opts.Processes)
	setInt("sample-reads", &opts.SampleReads)
	if c.IsSet("aln-quality") {
		opts.AlnQuality = c.Float64("aln-quality")
	}
	if c.IsSet("orientation") {
		opts.Orientation = c.String("orientation")
	}
	if c.IsSet("single-ended") {
		opts.SingleEnded = c.Bool("single-ended")
	}
	if c.IsSet("include-supplementary") {
		opts.IncludeSupplementary = c.Bool("include-supplementary")
	}
	if c.IsSet("exclude-bed") {
		opts.ExcludeBED = c.String("exclude-bed")
	}
	return opts, opts.Validate()
}

// openSamples opens every BAM named by --bam and samples their insert sizes in
// parallel. The caller must close them.
func openSamples(ctx context.Context, c *cli.Context, opts evidence.Opts) ([]*evidence.Sample, error) {
	paths := c.StringSlice("bam")
	if len(paths) == 0 {
		return nil, errors.E(errors.Invalid, "at least one --bam is required")
	}
	var exclude *interval.BEDUnion
	if opts.ExcludeBED != "" {
		var err error
		if exclude, err = interval.NewBEDUnionFromPath(opts.ExcludeBED, interval.NewBEDOpts{}); err != nil {
			return nil, err
		}
	}
	samples := make([]*evidence.Sample, len(paths))
	err := traverse.Each(len(paths), func(i int) error {
		var err error
		samples[i], err = evidence.OpenSample(ctx, paths[i], opts, exclude)
		return err
	})
	if err != nil {
		var opened []*evidence.Sample
		for _, s := range samples {
			if s != nil {
				opened = append(opened, s)
			}
		}
		closeSamples(opened)
		return nil, err
	}
	return samples, nil
}

func closeSamples(samples []*evidence.Sample) {
	for _, s := range samples {
		if err := s.Close(); err != nil {
			log.Error.Printf("close %s: %v", s.Name, err)
		}
	}
}

// variantArgs is one variant: a type and its breakpoint arguments.
type variantArgs struct {
	typ  string
	args []string
}

func readVariantArgs(ctx context.Context, path string) (specs []variantArgs, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	scanner := bufio.NewScanner(in.Reader(ctx))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		specs = append(specs, variantArgs{typ: fields[0], args: fields[1:]})
	}
	return specs, scanner.Err()
}

// repeatsOpener opens mobile element FASTA files once each.
type repeatsOpener struct {
	ctx   context.Context
	files map[string]*fasta.File
}

func (r *repeatsOpener) open(path string) (fasta.Fasta, error) {
	if f, ok := r.files[path]; ok {
		return f, nil
	}
	f, err := fasta.Open(r.ctx, path)
	if err != nil {
		return nil, err
	}
	r.files[path] = f
	return f, nil
}

func (r *repeatsOpener) close() {
	for path, f := range r.files {
		if err := f.Close(r.ctx); err != nil {
			log.Error.Printf("close %s: %v", path, err)
		}
	}
}

// printAlignments writes the segment layout of each allele, then every read
// pair's alignments against its chosen allele.
func printAlignments(w io.Writer, result *evidence.Result) error {
	v := result.Variant
	for _, allele := range variant.Alleles {
		segments, err := v.Segments(allele)
		if err != nil {
			return err
		}
		breakpoints, err := v.RelativeBreakpoints(allele)
		if err != nil {
			return err
		}
		var parts []string
		for _, seg := range variant.MergedSegments(segments) {
			parts = append(parts, seg.String())
		}
		fmt.Fprintf(w, "## %s %s breakpoints %v\n", allele, strings.Join(parts, " "), breakpoints)
	}
	for _, s := range result.Samples {
		for _, c := range s.Collections {
			if !c.Chosen() {
				continue
			}
			label, reason := c.Label()
			fmt.Fprintf(w, "# %s %s %s (%s)\n", s.Sample, c.Name, label, reason)
			set := c.Sets[label]
			if label == variant.Amb {
				set = c.Sets[variant.Ref]
			}
			for _, a := range set.Alignments() {
				fmt.Fprintf(w, "%s\n%s\n\n", a, a.Pretty())
			}
		}
	}
	return nil
}

func runEvidence(c *cli.Context) error {
	ctx := vcontext.Background()
	opts, err := optsFromFlags(ctx, c)
	if err != nil {
		return err
	}
	var specs []variantArgs
	if path := c.String("variants"); path != "" {
		if specs, err = readVariantArgs(ctx, path); err != nil {
			return err
		}
	}
	if c.NArg() > 0 {
		specs = append(specs, variantArgs{typ: c.Args().First(), args: c.Args().Tail()})
	}
	if len(specs) == 0 {
		return errors.E(errors.Invalid, "no variant given; pass breakpoints or --variants")
	}

	genome, err := fasta.Open(ctx, c.String("ref"))
	if err != nil {
		return err
	}
	defer genome.Close(ctx) // nolint: errcheck
	samples, err := openSamples(ctx, c, opts)
	if err != nil {
		return err
	}
	defer closeSamples(samples)
	repeats := &repeatsOpener{ctx: ctx, files: map[string]*fasta.File{}}
	defer repeats.close()

	searchDistance, alignDistance := evidence.Distances(opts, samples)
	log.Printf("search distance %d, align distance %d", searchDistance, alignDistance)

	var results []*evidence.Result
	for _, spec := range specs {
		v, err := variant.Parse(spec.typ, spec.args, alignDistance, genome, repeats.open)
		if err != nil {
			return err
		}
		log.Printf("processing %s", v)
		result, err := evidence.Run(ctx, v, samples, opts)
		if matepair.IsTooManyReads(err) {
			log.Error.Printf("skipping %s: more than %d reads", v, opts.MaxReads)
			continue
		}
		if err != nil {
			return err
		}
		total := result.Total()
		fmt.Printf("%s\talt=%d\tref=%d\tamb=%d\n", v.ShortName(), total[variant.Alt], total[variant.Ref], total[variant.Amb])
		if c.Bool("print-alignments") {
			if err := printAlignments(os.Stdout, result); err != nil {
				return err
			}
		}
		results = append(results, result)
	}
	if path := c.String("summary"); path != "" {
		if err := evidence.WriteSummaryFile(ctx, path, results); err != nil {
			return err
		}
	}
	return nil
}

func evidenceCommand() *cli.Command {
	return &cli.Command{
		Name:      "evidence",
		Usage:     "Classify the reads around one or more variants",
		ArgsUsage: "[type breakpoints...]",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "ref", Aliases: []string{"r"}, Required: true, Usage: "Reference genome FASTA; an adjacent .fai is used when present"},
			&cli.StringSliceFlag{Name: "bam", Aliases: []string{"b"}, Required: true, Usage: "Indexed BAM file; may be repeated"},
			&cli.StringFlag{Name: "variants", Usage: "File with one variant per line, in breakpoint format"},
			&cli.StringFlag{Name: "summary", Usage: "Write a TSV summary of the counts to this path"},
			&cli.BoolFlag{Name: "print-alignments", Usage: "Print every read pair's alignments against its chosen allele"},
		}, optionFlags()...),
		Action: runEvidence,
	}
}
