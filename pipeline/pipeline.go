// Package pipeline runs the small-RNA count preparation from quantification
// files to normalized, filtered counts, writing a checkpoint after each
// stage.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/annotation"
	"github.com/carbocation/mirnaprep/compileinfo"
	"github.com/carbocation/mirnaprep/counts"
	"github.com/carbocation/mirnaprep/filter"
	"github.com/carbocation/mirnaprep/metadata"
	"github.com/carbocation/mirnaprep/report"
	"github.com/carbocation/mirnaprep/snapshot"
	"github.com/carbocation/mirnaprep/tmm"
)

// HistogramBins is the number of bins in the terminal histogram.
const HistogramBins = 20

// Result holds the output of every stage. None of them share mutable state.
type Result struct {
	Timestamp time.Time
	Files     []counts.SampleFile
	Raw       *annotation.AnnotatedCounts
	Samples   metadata.Table
	NonZero   filter.Bundle
	Filtered  filter.Bundle
	Library   tmm.Library
	Outputs   []string
}

// Run executes every stage in order and stops at the first error. client may
// be nil unless an input lives in Google Storage.
func Run(ctx context.Context, cfg Config, client *storage.Client) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ts, err := cfg.RunTimestamp(time.Now())
	if err != nil {
		return nil, err
	}
	log.Printf("Run %s started at %s\n", cfg.Label, ts.Format(time.RFC3339))

	out := &Result{Timestamp: ts}

	// Discovery and loading

	out.Files, err = counts.Discover(ctx, cfg.InputDir, cfg.Pattern(), client)
	if err != nil {
		return nil, err
	}
	log.Printf("Found %d quantification files in %s\n", len(out.Files), cfg.InputDir)

	open := func(ctx context.Context, path string) (io.ReadCloser, error) {
		raw, err := mirnaprep.ReadAll(ctx, path, client)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(raw)), nil
	}

	entries, err := counts.LoadAll(ctx, out.Files, cfg.CountColumns(), cfg.Workers, open)
	if err != nil {
		return nil, err
	}

	discovered := make([]string, 0, len(out.Files))
	for _, f := range out.Files {
		discovered = append(discovered, f.Sample)
	}

	matrix, err := counts.Pivot(discovered, entries, cfg.FillMissing)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %d features across %d samples\n", matrix.NRows(), matrix.NCols())

	// Annotation

	raw, err := mirnaprep.ReadAll(ctx, cfg.Annotation, client)
	if err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageAnnotate, cfg.Annotation, err)
	}

	table, err := annotation.Load(bytes.NewReader(raw), cfg.AnnotationColumns())
	if err != nil {
		return nil, err
	}
	table = annotation.WithIdenticalSequence(table)

	out.Raw, err = annotation.Merge(table, matrix)
	if err != nil {
		return nil, err
	}
	log.Printf("Annotated %d features; dropped %d count rows and %d annotation rows without a partner\n",
		out.Raw.Counts.NRows(), out.Raw.DroppedCounts, out.Raw.DroppedAnnotation)

	rawStage := report.NewStage("raw")
	rawStage.ModTime = ts
	rawStage.Add(report.Path(cfg.OutputDir, cfg.Label, report.RawAnnotatedCountsName), func(w io.Writer) error {
		return report.WriteAnnotatedCounts(w, out.Raw.Header, out.Raw.Annotation, out.Raw.Counts)
	})
	if err := commit(rawStage, out); err != nil {
		return nil, err
	}

	densityData := report.DensityData(out.Raw.Counts)
	plotStage := report.NewStage("plot")
	plotStage.ModTime = ts
	plotStage.Add(report.Path(cfg.ImageDir, cfg.Label, report.DensityPlotName+"."+cfg.PlotFormat), func(w io.Writer) error {
		return report.PlotDensity(w, densityData, cfg.PlotFormat, cfg.Label+": log10(count + 1)")
	})
	if err := commit(plotStage, out); err != nil {
		return nil, err
	}

	if cfg.Histogram {
		if err := report.FprintHistogram(os.Stderr, densityData, HistogramBins); err != nil {
			log.Println("Could not print histogram:", err)
		}
	}

	// Sample metadata

	out.Samples, err = metadata.Derive(discovered)
	if err != nil {
		return nil, err
	}
	if err := metadata.CheckAlignment(out.Samples, out.Raw.Counts.Samples()); err != nil {
		return nil, err
	}
	log.Printf("Samples per group and time point:\n%s", out.Samples.Summary())

	// Filtering

	bundle := filter.Bundle{
		Counts:     out.Raw.Counts,
		Samples:    out.Samples,
		Annotation: out.Raw.Annotation,
	}
	if err := bundle.Check(); err != nil {
		return nil, err
	}

	out.NonZero = filter.DropZero(bundle)
	log.Println(filter.Tally("zero", bundle, out.NonZero))

	out.Filtered, err = filter.ByCPM(out.NonZero, cfg.CPMThreshold, cfg.MinLibraries)
	if err != nil {
		return nil, err
	}
	log.Println(filter.Tally("CPM", out.NonZero, out.Filtered))

	// Normalization

	opts := cfg.TMMOptions()
	opts.Reference, opts.RefColumn, err = tmm.ReferenceByName(cfg.Reference, out.Filtered.Counts.Samples())
	if err != nil {
		return nil, err
	}

	out.Library, err = tmm.Normalize(out.Filtered, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("TMM reference library: %s\n", out.Library.Samples[out.Library.Reference].ID)
	log.Println("Library sizes after filtering:", report.LibrarySizeSummary(out.Library.Counts.LibrarySizes()))

	finalStage := report.NewStage("filtered")
	finalStage.ModTime = ts
	finalStage.Add(report.Path(cfg.OutputDir, cfg.Label, report.SampleMetadataName), func(w io.Writer) error {
		return report.WriteSampleMetadata(w, out.Library.Samples)
	})
	finalStage.Add(report.Path(cfg.OutputDir, cfg.Label, report.FilteredCountsName), func(w io.Writer) error {
		return report.WriteAnnotatedCounts(w, out.Raw.Header, out.Library.Annotation, out.Library.Counts)
	})
	if err := commit(finalStage, out); err != nil {
		return nil, err
	}

	// Optional snapshot

	if cfg.Snapshot != "" {
		err := snapshot.Write(cfg.Snapshot, snapshot.Snapshot{
			Label:   cfg.Label,
			Created: ts,
			Build:   compileinfo.Get().Short(),
			Samples: out.Library.Samples,
			Stages: []snapshot.StageCounts{
				{Name: "raw", Counts: out.Raw.Counts},
				{Name: "nonzero", Counts: out.NonZero.Counts},
				{Name: "filtered", Counts: out.Library.Counts},
			},
		})
		if err != nil {
			return nil, err
		}
		out.Outputs = append(out.Outputs, cfg.Snapshot)
		log.Println("Wrote snapshot", cfg.Snapshot)
	}

	return out, nil
}

func commit(s *report.Stage, out *Result) error {
	if err := s.Commit(); err != nil {
		return err
	}
	for _, path := range s.Paths() {
		log.Println("Wrote", path)
	}
	out.Outputs = append(out.Outputs, s.Paths()...)
	return nil
}
