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
	"io"
	"sort"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/svevidence/variant"
)

// TotalSample is the sample name of the summed rows in a summary.
const TotalSample = "Total"

// WriteSummary writes the per-sample and total counts of results as a TSV
// with columns variant, sample, allele, key and value. For every label there
// is a "count" row, and one "reason_<reason>" row per classification reason.
func WriteSummary(w io.Writer, results []*Result) error {
	out := tsv.NewWriter(w)
	out.WriteString("variant\tsample\tallele\tkey\tvalue")
	if err := out.EndLine(); err != nil {
		return err
	}
	row := func(v, sample string, label variant.Allele, key string, value int) error {
		out.WriteString(v)
		out.WriteString(sample)
		out.WriteString(string(label))
		out.WriteString(key)
		out.WriteInt64(int64(value))
		return out.EndLine()
	}
	for _, r := range results {
		name := r.Variant.String()
		total := r.Total()
		totalReasons := map[variant.Allele]map[string]int{}
		for _, s := range r.Samples {
			for _, label := range Labels {
				if err := row(name, s.Sample, label, "count", s.Counts[label]); err != nil {
					return err
				}
				reasons := s.Reasons[label]
				if totalReasons[label] == nil {
					totalReasons[label] = map[string]int{}
				}
				for _, reason := range sortedKeys(reasons) {
					totalReasons[label][reason] += reasons[reason]
					if err := row(name, s.Sample, label, "reason_"+reason, reasons[reason]); err != nil {
						return err
					}
				}
			}
		}
		for _, label := range Labels {
			if err := row(name, TotalSample, label, "count", total[label]); err != nil {
				return err
			}
			for _, reason := range sortedKeys(totalReasons[label]) {
				if err := row(name, TotalSample, label, "reason_"+reason, totalReasons[label][reason]); err != nil {
					return err
				}
			}
		}
	}
	return out.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteSummaryFile writes the summary of results to path.
func WriteSummaryFile(ctx context.Context, path string, results []*Result) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return WriteSummary(out.Writer(ctx), results)
}
