// Package filter removes low-expression features from a counts matrix while
// keeping the matrix and its sample metadata aligned.
package filter

import (
	"fmt"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/annotation"
	"github.com/carbocation/mirnaprep/counts"
	"github.com/carbocation/mirnaprep/metadata"
)

// Bundle is a counts matrix with its sample metadata and, optionally, the
// annotation of each row. Filters return new bundles and leave their input
// alone.
type Bundle struct {
	Counts     *counts.Matrix
	Samples    metadata.Table
	Annotation []annotation.Record
}

// Check verifies that samples align with matrix columns and, when present,
// annotation aligns with matrix rows.
func (b Bundle) Check() error {
	if err := metadata.CheckAlignment(b.Samples, b.Counts.Samples()); err != nil {
		return err
	}

	if b.Annotation == nil {
		return nil
	}
	if len(b.Annotation) != b.Counts.NRows() {
		return mirnaprep.Errorf(mirnaprep.AlignmentError, mirnaprep.StageFilter, "",
			"%d annotation rows for %d count rows", len(b.Annotation), b.Counts.NRows())
	}
	for i, rec := range b.Annotation {
		if rec.Key() != b.Counts.Key(i) {
			return mirnaprep.Errorf(mirnaprep.AlignmentError, mirnaprep.StageFilter, rec.Key().String(),
				"annotation row %d does not match count row %s", i, b.Counts.Key(i))
		}
	}
	return nil
}

func (b Bundle) selectRows(keep []bool) Bundle {
	out := Bundle{
		Counts:  b.Counts.SelectRows(keep),
		Samples: append(metadata.Table(nil), b.Samples...),
	}
	if b.Annotation != nil {
		out.Annotation = make([]annotation.Record, 0, out.Counts.NRows())
		for i, k := range keep {
			if k {
				out.Annotation = append(out.Annotation, b.Annotation[i])
			}
		}
	}
	return out
}

// DropZero removes features whose counts sum to zero across all samples.
func DropZero(b Bundle) Bundle {
	sums := b.Counts.RowSums()
	keep := make([]bool, len(sums))
	for i, s := range sums {
		keep[i] = s > 0
	}
	return b.selectRows(keep)
}

// ValidateCPM checks the CPM filter parameters against the number of samples.
func ValidateCPM(threshold float64, minLibraries, nSamples int) error {
	if threshold < 0 {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageFilter, "cpm_threshold",
			"threshold %v must not be negative", threshold)
	}
	if minLibraries < 1 {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageFilter, "min_libraries",
			"minimum library count %d must be at least 1", minLibraries)
	}
	if minLibraries > nSamples {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageFilter, "min_libraries",
			"minimum library count %d exceeds the %d samples", minLibraries, nSamples)
	}
	return nil
}

// ByCPM keeps features whose counts per million exceed threshold in at least
// minLibraries samples. CPM uses the input bundle's column sums as library
// sizes, independent of any normalization factor.
func ByCPM(b Bundle, threshold float64, minLibraries int) (Bundle, error) {
	if err := ValidateCPM(threshold, minLibraries, b.Counts.NCols()); err != nil {
		return Bundle{}, err
	}

	cpm := b.Counts.CPM()
	keep := make([]bool, len(cpm))
	for i, row := range cpm {
		n := 0
		for _, v := range row {
			if v > threshold {
				n++
			}
		}
		keep[i] = n >= minLibraries
	}

	return b.selectRows(keep), nil
}

// Result tallies the features going into and coming out of one filter.
type Result struct {
	Name string
	In   int
	Out  int
}

// Tally compares the row counts of a filter's input and output.
func Tally(name string, in, out Bundle) Result {
	return Result{Name: name, In: in.Counts.NRows(), Out: out.Counts.NRows()}
}

func (r Result) Dropped() int {
	return r.In - r.Out
}

func (r Result) String() string {
	return fmt.Sprintf("%s filter kept %d of %d features (%d dropped)", r.Name, r.Out, r.In, r.Dropped())
}
