// Package tmm computes Trimmed Mean of M-values library scale factors.
//
// The per-sample computation follows edgeR's calcNormFactors(method="TMM"):
// log-ratios (M) and average log intensities (A) against a reference
// library, rank-based symmetric trimming of both, and a precision-weighted
// mean of the surviving M values. The resulting factors are rescaled to have
// a geometric mean of one. Counts themselves are never rescaled.
//
// edgeR resets only an NA trimmed mean to zero. Here an infinite mean is
// reset as well, so every factor is finite and positive.
package tmm

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RefMethod chooses the reference library.
type RefMethod int

const (
	// RefUpperQuartile picks the library whose upper quartile of
	// count/library size is closest to the mean upper quartile (edgeR's
	// default).
	RefUpperQuartile RefMethod = iota

	// RefGeometricMean picks the library whose size is closest to the
	// geometric mean library size.
	RefGeometricMean

	// RefFixed uses Options.RefColumn.
	RefFixed
)

// ErrZeroLibrary is returned when a library has no reads.
var ErrZeroLibrary = errors.New("library size must be positive and finite")

type Options struct {
	LogRatioTrim float64
	SumTrim      float64
	DoWeighting  bool
	ACutoff      float64
	Reference    RefMethod
	RefColumn    int
}

func DefaultOptions() Options {
	return Options{
		LogRatioTrim: 0.3,
		SumTrim:      0.05,
		DoWeighting:  true,
		ACutoff:      -1e10,
		Reference:    RefUpperQuartile,
	}
}

func (o Options) Validate() error {
	if o.LogRatioTrim < 0 || o.LogRatioTrim >= 0.5 {
		return fmt.Errorf("log-ratio trim %v must be in [0, 0.5)", o.LogRatioTrim)
	}
	if o.SumTrim < 0 || o.SumTrim >= 0.5 {
		return fmt.Errorf("sum trim %v must be in [0, 0.5)", o.SumTrim)
	}
	return nil
}

// Factor returns the scale factor of the obs library relative to the ref
// library. Features where either library has a zero count carry no
// information and are ignored. Identical inputs yield exactly 1.
func Factor(obs, ref []int64, libObs, libRef float64, opts Options) (float64, error) {
	if len(obs) != len(ref) {
		return 0, fmt.Errorf("observed library has %d features, reference has %d", len(obs), len(ref))
	}
	if !positive(libObs) || !positive(libRef) {
		return 0, ErrZeroLibrary
	}

	logR := make([]float64, 0, len(obs))
	absE := make([]float64, 0, len(obs))
	v := make([]float64, 0, len(obs))
	for i := range obs {
		o, r := float64(obs[i]), float64(ref[i])
		pO, pR := o/libObs, r/libRef

		lr := math.Log2(pO / pR)
		ae := (math.Log2(pO) + math.Log2(pR)) / 2
		if !finite(lr) || !finite(ae) || ae <= opts.ACutoff {
			continue
		}

		logR = append(logR, lr)
		absE = append(absE, ae)
		v = append(v, (libObs-o)/libObs/o+(libRef-r)/libRef/r)
	}

	if len(logR) == 0 {
		return 1, nil
	}
	maxAbs := 0.0
	for _, lr := range logR {
		maxAbs = math.Max(maxAbs, math.Abs(lr))
	}
	if maxAbs < 1e-6 {
		return 1, nil
	}

	n := float64(len(logR))
	loL := math.Floor(n*opts.LogRatioTrim) + 1
	hiL := n + 1 - loL
	loS := math.Floor(n*opts.SumTrim) + 1
	hiS := n + 1 - loS

	rankL := rank(logR)
	rankS := rank(absE)

	var num, den, sum float64
	var kept int
	for i := range logR {
		if rankL[i] < loL || rankL[i] > hiL || rankS[i] < loS || rankS[i] > hiS {
			continue
		}
		kept++
		sum += logR[i]

		// NaN terms are skipped in each sum independently
		if w := logR[i] / v[i]; !math.IsNaN(w) {
			num += w
		}
		if w := 1 / v[i]; !math.IsNaN(w) {
			den += w
		}
	}

	return math.Exp2(logFactor(num, den, sum, kept, opts.DoWeighting)), nil
}

// logFactor is the log2 factor from the trimmed sums. Nothing kept, a NaN
// and an infinite mean all give 0.
func logFactor(num, den, sum float64, kept int, weighting bool) float64 {
	var f float64
	if kept == 0 {
		return 0
	} else if weighting {
		f = num / den
	} else {
		f = sum / float64(kept)
	}
	if !finite(f) {
		return 0
	}
	return f
}

// Columns is the read-only view of a counts matrix that NormFactors needs.
type Columns interface {
	NCols() int
	Column(j int) []int64
}

// Reference returns the index of the reference library.
func Reference(m Columns, lib []float64, opts Options) (int, error) {
	n := m.NCols()
	if n < 1 {
		return 0, fmt.Errorf("no libraries")
	}

	switch opts.Reference {
	case RefFixed:
		if opts.RefColumn < 0 || opts.RefColumn >= n {
			return 0, fmt.Errorf("reference column %d is out of range for %d libraries", opts.RefColumn, n)
		}
		return opts.RefColumn, nil

	case RefGeometricMean:
		gm := stat.GeometricMean(lib, nil)
		dist := make([]float64, n)
		for j := range dist {
			dist[j] = math.Abs(lib[j] - gm)
		}
		return floats.MinIdx(dist), nil

	case RefUpperQuartile:
		f75 := make([]float64, n)
		for j := 0; j < n; j++ {
			col := m.Column(j)
			y := make([]float64, len(col))
			for i, c := range col {
				y[i] = float64(c) / lib[j]
			}
			f75[j] = quantile(y, 0.75)
		}

		if quantile(f75, 0.5) < 1e-20 {
			// Mostly-zero libraries: fall back to the library with the
			// largest sum of square-root counts
			sqrtSums := make([]float64, n)
			for j := 0; j < n; j++ {
				for _, c := range m.Column(j) {
					sqrtSums[j] += math.Sqrt(float64(c))
				}
			}
			return floats.MaxIdx(sqrtSums), nil
		}

		mean := stat.Mean(f75, nil)
		dist := make([]float64, n)
		for j := range dist {
			dist[j] = math.Abs(f75[j] - mean)
		}
		return floats.MinIdx(dist), nil
	}

	return 0, fmt.Errorf("unknown reference method %d", opts.Reference)
}

// NormFactors returns one factor per library, rescaled to a geometric mean
// of one, and the reference library index.
func NormFactors(m Columns, lib []float64, opts Options) ([]float64, int, error) {
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}
	if len(lib) != m.NCols() {
		return nil, 0, fmt.Errorf("%d library sizes for %d libraries", len(lib), m.NCols())
	}
	for j, l := range lib {
		if !positive(l) {
			return nil, 0, &LibraryError{Column: j, Err: ErrZeroLibrary}
		}
	}

	ref, err := Reference(m, lib, opts)
	if err != nil {
		return nil, 0, err
	}

	refCol := m.Column(ref)
	factors := make([]float64, m.NCols())
	for j := range factors {
		f, err := Factor(m.Column(j), refCol, lib[j], lib[ref], opts)
		if err != nil {
			return nil, 0, &LibraryError{Column: j, Err: err}
		}
		factors[j] = f
	}

	gm := stat.GeometricMean(factors, nil)
	floats.Scale(1/gm, factors)

	return factors, ref, nil
}

// LibraryError ties a failure to a library (matrix column).
type LibraryError struct {
	Column int
	Err    error
}

func (e *LibraryError) Error() string {
	return fmt.Sprintf("library %d: %v", e.Column, e.Err)
}

func (e *LibraryError) Unwrap() error {
	return e.Err
}

// quantile is the linearly interpolated sample quantile over the closed
// range of order statistics (Hyndman & Fan type 7, R's default).
func quantile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)

	h := float64(len(s)-1) * p
	lo := math.Floor(h)
	hi := math.Ceil(h)
	return s[int(lo)] + (h-lo)*(s[int(hi)]-s[int(lo)])
}

// rank returns 1-based ranks, averaging ties.
func rank(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	out := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func positive(x float64) bool {
	return finite(x) && x > 0
}
