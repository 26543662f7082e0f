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
	"math"
	"sort"
)

// kde is a one-dimensional Gaussian kernel density estimate with Scott's
// bandwidth.
type kde struct {
	// data is sorted.
	data  []float64
	sigma float64
	norm  float64
}

// kernelCutoff is the distance, in bandwidths, beyond which a sample's
// contribution is ignored. exp(-cutoff^2/2) is below 1e-21.
const kernelCutoff = 10

func newKDE(values []int) *kde {
	n := len(values)
	data := make([]float64, n)
	for i, v := range values {
		data[i] = float64(v)
	}
	sort.Float64s(data)
	factor := math.Pow(float64(n), -1.0/5)
	sigma := factor * stddev(data)
	if sigma == 0 || math.IsNaN(sigma) {
		sigma = 1
	}
	return &kde{
		data:  data,
		sigma: sigma,
		norm:  1 / (float64(n) * sigma * math.Sqrt(2*math.Pi)),
	}
}

// density evaluates the estimate at x.
func (k *kde) density(x float64) float64 {
	lo := sort.SearchFloat64s(k.data, x-kernelCutoff*k.sigma)
	sum := 0.0
	for _, v := range k.data[lo:] {
		d := (x - v) / k.sigma
		if d < -kernelCutoff {
			break
		}
		sum += math.Exp(-d * d / 2)
	}
	return sum * k.norm
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// stddev is the sample standard deviation, with n-1 in the denominator.
func stddev(data []float64) float64 {
	if len(data) < 2 {
		return math.NaN()
	}
	m := mean(data)
	ss := 0.0
	for _, v := range data {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(data)-1))
}

// median returns the median of data, averaging the two middle values when
// len(data) is even. data is not modified.
func median(data []float64) float64 {
	return percentile(data, 50)
}

// percentile returns the p-th percentile of data, interpolating linearly
// between closest ranks. data is not modified.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func toFloats(values []int) []float64 {
	f := make([]float64, len(values))
	for i, v := range values {
		f[i] = float64(v)
	}
	return f
}
