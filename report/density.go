package report

import (
	"fmt"
	"math"

	"github.com/carbocation/mirnaprep/counts"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SampleValues holds the plotted values of one sample.
type SampleValues struct {
	Sample string
	Values []float64
}

// DensityData returns log10(count+1) for every cell, grouped by sample in
// column order.
func DensityData(m *counts.Matrix) []SampleValues {
	out := make([]SampleValues, 0, m.NCols())
	for j, sample := range m.Samples() {
		col := m.Column(j)
		vals := make([]float64, len(col))
		for i, c := range col {
			vals[i] = math.Log10(float64(c) + 1)
		}
		out = append(out, SampleValues{Sample: sample, Values: vals})
	}
	return out
}

// Bandwidth is Silverman's rule of thumb:
// 0.9 × min(sd, IQR/1.34) × n^(-1/5).
func Bandwidth(x []float64) float64 {
	if len(x) < 1 {
		return 1
	}

	hi := 0.0
	if len(x) > 1 {
		hi = stat.StdDev(x, nil)
	}

	lo := hi
	if iqr, err := stats.InterQuartileRange(x); err == nil && iqr/1.34 < lo {
		lo = iqr / 1.34
	}

	// Degenerate spreads fall back in turn to sd, |x[0]| and 1
	if lo == 0 {
		lo = hi
	}
	if lo == 0 {
		lo = math.Abs(x[0])
	}
	if lo == 0 {
		lo = 1
	}

	return 0.9 * lo * math.Pow(float64(len(x)), -0.2)
}

// Density evaluates a Gaussian kernel density estimate of x on a regular grid
// of points values, extending three bandwidths beyond the data.
func Density(x []float64, points int) (xs, ys []float64, err error) {
	if len(x) < 1 {
		return nil, nil, fmt.Errorf("no values to estimate a density from")
	}
	if points < 2 {
		return nil, nil, fmt.Errorf("need at least 2 grid points, got %d", points)
	}

	bw := Bandwidth(x)
	lo := floats.Min(x) - 3*bw
	hi := floats.Max(x) + 3*bw

	xs = make([]float64, points)
	floats.Span(xs, lo, hi)

	ys = make([]float64, points)
	norm := 1 / (float64(len(x)) * bw * math.Sqrt(2*math.Pi))
	for g, at := range xs {
		sum := 0.0
		for _, v := range x {
			z := (at - v) / bw
			sum += math.Exp(-0.5 * z * z)
		}
		ys[g] = sum * norm
	}

	return xs, ys, nil
}
