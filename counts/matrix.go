package counts

import (
	"fmt"
	"sort"

	"github.com/carbocation/mirnaprep"
)

// Matrix is an immutable features × samples table of raw read counts. Rows
// are unique (feature, precursor) keys; columns are sample identifiers.
type Matrix struct {
	samples []string
	keys    []Key
	values  [][]int64 // values[row][column]
}

// NewMatrix copies its arguments into a Matrix after checking dimensions,
// duplicate keys and duplicate samples.
func NewMatrix(samples []string, keys []Key, values [][]int64) (*Matrix, error) {
	if len(values) != len(keys) {
		return nil, fmt.Errorf("%d keys but %d rows of values", len(keys), len(values))
	}

	seenSample := make(map[string]struct{}, len(samples))
	for _, s := range samples {
		if _, exists := seenSample[s]; exists {
			return nil, fmt.Errorf("duplicate sample %s", s)
		}
		seenSample[s] = struct{}{}
	}

	seenKey := make(map[Key]struct{}, len(keys))
	m := &Matrix{
		samples: append([]string(nil), samples...),
		keys:    append([]Key(nil), keys...),
		values:  make([][]int64, len(values)),
	}
	for i, row := range values {
		if _, exists := seenKey[keys[i]]; exists {
			return nil, fmt.Errorf("duplicate row %s", keys[i])
		}
		seenKey[keys[i]] = struct{}{}

		if len(row) != len(samples) {
			return nil, fmt.Errorf("row %s has %d values for %d samples", keys[i], len(row), len(samples))
		}
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("negative count at %s, %s", keys[i], samples[j])
			}
		}
		m.values[i] = append([]int64(nil), row...)
	}

	return m, nil
}

// Pivot reshapes the long table into a matrix. Columns are the given
// samples in sorted order and rows the distinct keys in Key.Less order. When
// samples is nil the columns are the distinct samples of entries. A sample
// with no entries at all, an entry for an undeclared sample and a duplicate
// (sample, key) pair are errors. A key missing from a sample is an error
// unless fillMissing is set, in which case the cell is zero; with
// fillMissing an empty sample becomes an all-zero column.
func Pivot(samples []string, entries []Entry, fillMissing bool) (*Matrix, error) {
	if len(entries) < 1 {
		return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StagePivot, "", "no count entries to pivot")
	}

	declared := samples != nil
	sampleIdx := make(map[string]int)
	keyIdx := make(map[Key]int)
	samples = append([]string(nil), samples...)
	for _, s := range samples {
		sampleIdx[s] = 0
	}
	keys := make([]Key, 0)
	for _, e := range entries {
		if _, exists := sampleIdx[e.Sample]; !exists {
			if declared {
				return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StagePivot, e.Sample,
					"entry for %s belongs to no discovered sample", e.Key)
			}
			sampleIdx[e.Sample] = 0
			samples = append(samples, e.Sample)
		}
		if _, exists := keyIdx[e.Key]; !exists {
			keyIdx[e.Key] = 0
			keys = append(keys, e.Key)
		}
	}

	sort.Strings(samples)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for i, s := range samples {
		sampleIdx[s] = i
	}
	for i, k := range keys {
		keyIdx[k] = i
	}

	values := make([][]int64, len(keys))
	present := make([][]bool, len(keys))
	for i := range keys {
		values[i] = make([]int64, len(samples))
		present[i] = make([]bool, len(samples))
	}

	for _, e := range entries {
		i, j := keyIdx[e.Key], sampleIdx[e.Sample]
		if present[i][j] {
			return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StagePivot, e.Sample,
				"duplicate entries for %s", e.Key)
		}
		present[i][j] = true
		values[i][j] = e.Count
	}

	for j, s := range samples {
		found := false
		for i := range keys {
			if present[i][j] {
				found = true
				break
			}
		}
		if !found && !fillMissing {
			return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StagePivot, s,
				"sample has no count rows")
		}
	}

	if !fillMissing {
		for i, row := range present {
			for j, ok := range row {
				if !ok {
					return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StagePivot, samples[j],
						"feature %s is missing from this sample", keys[i])
				}
			}
		}
	}

	m, err := NewMatrix(samples, keys, values)
	return m, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StagePivot, "", err)
}

// Long is the inverse of Pivot: one entry per cell, row-major.
func (m *Matrix) Long() []Entry {
	out := make([]Entry, 0, len(m.keys)*len(m.samples))
	for i, k := range m.keys {
		for j, s := range m.samples {
			out = append(out, Entry{Key: k, Sample: s, Count: m.values[i][j]})
		}
	}
	return out
}

func (m *Matrix) NRows() int { return len(m.keys) }
func (m *Matrix) NCols() int { return len(m.samples) }

// Samples returns the column identifiers in column order.
func (m *Matrix) Samples() []string {
	return append([]string(nil), m.samples...)
}

// Keys returns the row keys in row order.
func (m *Matrix) Keys() []Key {
	return append([]Key(nil), m.keys...)
}

func (m *Matrix) Key(i int) Key {
	return m.keys[i]
}

func (m *Matrix) At(i, j int) int64 {
	return m.values[i][j]
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []int64 {
	return append([]int64(nil), m.values[i]...)
}

// Column returns a copy of column j.
func (m *Matrix) Column(j int) []int64 {
	out := make([]int64, len(m.keys))
	for i := range m.values {
		out[i] = m.values[i][j]
	}
	return out
}

// LibrarySizes returns the column sums.
func (m *Matrix) LibrarySizes() []int64 {
	out := make([]int64, len(m.samples))
	for _, row := range m.values {
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// RowSums returns the per-feature totals across samples.
func (m *Matrix) RowSums() []int64 {
	out := make([]int64, len(m.keys))
	for i, row := range m.values {
		for _, v := range row {
			out[i] += v
		}
	}
	return out
}

// CPM returns counts per million, using this matrix's own column sums as
// library sizes. A column summing to zero yields zero CPM throughout.
func (m *Matrix) CPM() [][]float64 {
	lib := m.LibrarySizes()
	out := make([][]float64, len(m.keys))
	for i, row := range m.values {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if lib[j] == 0 {
				continue
			}
			out[i][j] = float64(v) / float64(lib[j]) * 1e6
		}
	}
	return out
}

// SelectRows returns a new matrix holding only the rows where keep is true,
// in their original order.
func (m *Matrix) SelectRows(keep []bool) *Matrix {
	out := &Matrix{
		samples: append([]string(nil), m.samples...),
		keys:    make([]Key, 0),
		values:  make([][]int64, 0),
	}
	for i, k := range keep {
		if !k {
			continue
		}
		out.keys = append(out.keys, m.keys[i])
		out.values = append(out.values, append([]int64(nil), m.values[i]...))
	}
	return out
}

// Index returns the row holding key, or -1.
func (m *Matrix) Index(key Key) int {
	for i, k := range m.keys {
		if k == key {
			return i
		}
	}
	return -1
}
