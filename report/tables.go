// Package report renders the pipeline's checkpoint tables and its diagnostic
// density plot.
package report

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"

	"github.com/carbocation/mirnaprep/annotation"
	"github.com/carbocation/mirnaprep/counts"
	"github.com/carbocation/mirnaprep/metadata"
	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"gopkg.in/guregu/null.v3"
)

// Output file names, each prefixed with the method label.
const (
	RawAnnotatedCountsName = "raw_annotated_counts.csv"
	SampleMetadataName     = "sample_metadata.csv"
	FilteredCountsName     = "filtered_counts.csv"
	DensityPlotName        = "log10_counts_density"
)

// Path joins dir with "<label>_<name>".
func Path(dir, label, name string) string {
	if label == "" {
		return filepath.Join(dir, name)
	}
	return filepath.Join(dir, label+"_"+name)
}

// WriteAnnotatedCounts writes annotation columns, identical_sequence, then
// one column per sample. When ann is nil the rows are labelled by their
// feature and precursor instead.
func WriteAnnotatedCounts(w io.Writer, header []string, ann []annotation.Record, m *counts.Matrix) error {
	cw := csv.NewWriter(w)

	if ann == nil {
		header = []string{"feature", "precursor"}
	} else {
		header = append(append([]string(nil), header...), annotation.IdenticalSequenceColumn)
	}
	if err := cw.Write(append(header, m.Samples()...)); err != nil {
		return pfx.Err(err)
	}

	row := make([]string, 0, len(header)+m.NCols())
	for i := 0; i < m.NRows(); i++ {
		row = row[:0]
		if ann == nil {
			k := m.Key(i)
			row = append(row, k.Feature, k.Precursor)
		} else {
			row = append(row, ann[i].Fields...)
			row = append(row, ann[i].IdenticalSequence)
		}
		for j := 0; j < m.NCols(); j++ {
			row = append(row, strconv.FormatInt(m.At(i, j), 10))
		}
		if err := cw.Write(row); err != nil {
			return pfx.Err(err)
		}
	}

	cw.Flush()
	return pfx.Err(cw.Error())
}

type sampleRow struct {
	Sample     string `csv:"sample"`
	Animal     string `csv:"animal"`
	TimePoint  string `csv:"time_point"`
	Group      string `csv:"group"`
	LibSize    string `csv:"lib_size"`
	NormFactor string `csv:"norm_factors"`
}

// WriteSampleMetadata writes one row per sample. Unset library sizes and
// factors are written as empty cells.
func WriteSampleMetadata(w io.Writer, t metadata.Table) error {
	rows := make([]*sampleRow, 0, len(t))
	for _, s := range t {
		rows = append(rows, &sampleRow{
			Sample:     s.ID,
			Animal:     s.Animal,
			TimePoint:  s.TimePoint.String(),
			Group:      s.Group.String(),
			LibSize:    NullIntFormatter(s.LibSize),
			NormFactor: NullFloatFormatter(s.NormFactor),
		})
	}

	return pfx.Err(gocsv.Marshal(&rows, w))
}

func NullIntFormatter(n null.Int) string {
	if !n.Valid {
		return ""
	}

	return strconv.FormatInt(n.Int64, 10)
}

func NullFloatFormatter(n null.Float) string {
	if !n.Valid {
		return ""
	}

	return strconv.FormatFloat(n.Float64, 'g', -1, 64)
}
