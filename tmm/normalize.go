package tmm

import (
	"errors"
	"fmt"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/filter"
)

// Library is a filtered bundle whose sample metadata carries recomputed
// library sizes and TMM factors. Its counts are the filtered raw counts.
type Library struct {
	filter.Bundle
	Reference int
}

// EffectiveLibrarySizes returns library size × normalization factor per
// sample, the quantity downstream models divide by.
func (l Library) EffectiveLibrarySizes() []float64 {
	out := make([]float64, len(l.Samples))
	for i, s := range l.Samples {
		out[i] = float64(s.LibSize.Int64) * s.NormFactor.Float64
	}
	return out
}

// Normalize recomputes library sizes from b's counts and computes TMM factors.
func Normalize(b filter.Bundle, opts Options) (Library, error) {
	if err := opts.Validate(); err != nil {
		return Library{}, mirnaprep.Wrap(mirnaprep.ConfigError, mirnaprep.StageNormalize, "trim", err)
	}
	if err := b.Check(); err != nil {
		return Library{}, err
	}

	sizes := b.Counts.LibrarySizes()
	samples, err := b.Samples.WithLibrarySizes(sizes)
	if err != nil {
		return Library{}, err
	}

	lib := make([]float64, len(sizes))
	for j, s := range sizes {
		lib[j] = float64(s)
	}

	factors, ref, err := NormFactors(b.Counts, lib, opts)
	if err != nil {
		record := ""
		var le *LibraryError
		if errors.As(err, &le) {
			record = b.Samples[le.Column].ID
		}
		return Library{}, mirnaprep.Wrap(mirnaprep.NormalizationError, mirnaprep.StageNormalize, record,
			fmt.Errorf("%d features after filtering: %w", b.Counts.NRows(), err))
	}

	samples, err = samples.WithNormFactors(factors)
	if err != nil {
		return Library{}, err
	}

	return Library{
		Bundle: filter.Bundle{
			Counts:     b.Counts,
			Samples:    samples,
			Annotation: b.Annotation,
		},
		Reference: ref,
	}, nil
}

// ReferenceByName resolves a configured reference: "upperquartile",
// "geomean", or a sample identifier.
func ReferenceByName(name string, samples []string) (RefMethod, int, error) {
	switch name {
	case "", "upperquartile":
		return RefUpperQuartile, 0, nil
	case "geomean":
		return RefGeometricMean, 0, nil
	}

	for j, s := range samples {
		if s == name {
			return RefFixed, j, nil
		}
	}

	return 0, 0, mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageNormalize, name,
		"reference is neither upperquartile, geomean, nor a sample identifier")
}
