// Package metadata derives per-sample experimental design covariates from
// sample identifiers.
package metadata

import (
	"fmt"
	"strings"

	"github.com/carbocation/mirnaprep"
	"gopkg.in/guregu/null.v3"
)

// Sample is one row of the sample metadata table. LibSize and NormFactor are
// null until the filtering and normalization stages fill them in.
type Sample struct {
	ID         string
	Animal     string
	TimePoint  Factor
	Group      Factor
	LibSize    null.Int
	NormFactor null.Float
}

// Parse derives a Sample from its identifier. It is a pure function of id.
func Parse(id string) (Sample, error) {
	_, animal, err := AnimalRules.Apply(id)
	if err != nil {
		return Sample{}, mirnaprep.Wrap(mirnaprep.ParseError, mirnaprep.StageMetadata, id, err)
	}

	timePoint, _, err := TimePointRules.Apply(id)
	if err != nil {
		return Sample{}, mirnaprep.Wrap(mirnaprep.ParseError, mirnaprep.StageMetadata, id, err)
	}

	group, _, err := GroupRules.Apply(id)
	if err != nil {
		return Sample{}, mirnaprep.Wrap(mirnaprep.ParseError, mirnaprep.StageMetadata, id, err)
	}

	return Sample{
		ID:        id,
		Animal:    animal,
		TimePoint: timePoint,
		Group:     group,
	}, nil
}

// Table holds one Sample per library, in matrix column order. Methods never
// modify the receiver.
type Table []Sample

// Derive parses every identifier, keeping the given order.
func Derive(ids []string) (Table, error) {
	out := make(Table, 0, len(ids))
	for _, id := range ids {
		s, err := Parse(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// IDs returns the sample identifiers in row order.
func (t Table) IDs() []string {
	out := make([]string, len(t))
	for i, s := range t {
		out[i] = s.ID
	}
	return out
}

// CheckAlignment requires the table's rows to be exactly the matrix columns,
// position by position.
func CheckAlignment(t Table, columns []string) error {
	if len(t) != len(columns) {
		return mirnaprep.Errorf(mirnaprep.AlignmentError, mirnaprep.StageMetadata, "",
			"%d metadata rows but %d matrix columns", len(t), len(columns))
	}
	for i, s := range t {
		if s.ID != columns[i] {
			return mirnaprep.Errorf(mirnaprep.AlignmentError, mirnaprep.StageMetadata, s.ID,
				"metadata row %d does not match matrix column %d (%s)", i, i, columns[i])
		}
	}
	return nil
}

// WithLibrarySizes returns a copy of t with library sizes set.
func (t Table) WithLibrarySizes(sizes []int64) (Table, error) {
	if len(sizes) != len(t) {
		return nil, mirnaprep.Errorf(mirnaprep.AlignmentError, mirnaprep.StageMetadata, "",
			"%d library sizes for %d samples", len(sizes), len(t))
	}

	out := append(Table(nil), t...)
	for i := range out {
		out[i].LibSize = null.IntFrom(sizes[i])
	}
	return out, nil
}

// WithNormFactors returns a copy of t with normalization factors set.
func (t Table) WithNormFactors(factors []float64) (Table, error) {
	if len(factors) != len(t) {
		return nil, mirnaprep.Errorf(mirnaprep.AlignmentError, mirnaprep.StageMetadata, "",
			"%d normalization factors for %d samples", len(factors), len(t))
	}

	out := append(Table(nil), t...)
	for i := range out {
		out[i].NormFactor = null.FloatFrom(factors[i])
	}
	return out, nil
}

// Summary tabulates the number of samples per group (rows) and time point
// (columns), in level order.
func (t Table) Summary() string {
	counts := make([][]int, len(GroupLevels))
	for i := range counts {
		counts[i] = make([]int, len(TimePointLevels))
	}
	for _, s := range t {
		counts[s.Group.Level][s.TimePoint.Level]++
	}

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("%-8s", "group"))
	for _, tp := range TimePointLevels {
		b.WriteString(fmt.Sprintf("%6s", tp))
	}
	b.WriteString("\n")

	for g, row := range counts {
		b.WriteString(fmt.Sprintf("%-8s", GroupLevels[g]))
		for _, n := range row {
			b.WriteString(fmt.Sprintf("%6d", n))
		}
		b.WriteString("\n")
	}

	return b.String()
}
