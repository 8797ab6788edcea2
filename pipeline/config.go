package pipeline

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/annotation"
	"github.com/carbocation/mirnaprep/counts"
	"github.com/carbocation/mirnaprep/report"
	"github.com/carbocation/mirnaprep/tmm"
	"github.com/carbocation/pfx"
)

type Config struct {
	ConfigPath string `json:"-"`

	InputDir   string `json:"input_dir"`
	Annotation string `json:"annotation"`
	OutputDir  string `json:"output_dir"`
	ImageDir   string `json:"image_dir"`

	FilePrefix string `json:"file_prefix"`
	FileSuffix string `json:"file_suffix"`
	IDPrefix   string `json:"id_prefix"`
	Label      string `json:"label"`

	FeatureColumn   string `json:"feature_column"`
	PrecursorColumn string `json:"precursor_column"`
	CountColumn     string `json:"count_column"`

	AnnotationGeneColumn      string `json:"annotation_gene_column"`
	AnnotationPrecursorColumn string `json:"annotation_precursor_column"`
	AnnotationSequenceColumn  string `json:"annotation_sequence_column"`

	CPMThreshold float64 `json:"cpm_threshold"`
	MinLibraries int     `json:"min_libraries"`
	LogRatioTrim float64 `json:"logratio_trim"`
	SumTrim      float64 `json:"sum_trim"`

	// Reference is "upperquartile", "geomean" or a sample identifier.
	Reference string `json:"reference"`

	FillMissing bool   `json:"fill_missing"`
	Workers     int    `json:"workers"`
	PlotFormat  string `json:"plot_format"`

	// Timezone and Timestamp only affect file modification times and the
	// snapshot's run record.
	Timezone  string `json:"timezone"`
	Timestamp string `json:"timestamp"`

	Snapshot  string `json:"snapshot"`
	Histogram bool   `json:"histogram"`
}

// DefaultConfig matches miRDeep2 quantifier output and the usual filtering
// thresholds.
func DefaultConfig() Config {
	cc := counts.DefaultColumns()
	ac := annotation.DefaultColumns()
	opts := tmm.DefaultOptions()

	return Config{
		OutputDir:                 ".",
		ImageDir:                  ".",
		FilePrefix:                "miRNAs_expressed_",
		FileSuffix:                ".csv",
		IDPrefix:                  "X",
		Label:                     "TMM",
		FeatureColumn:             cc.Feature,
		PrecursorColumn:           cc.Precursor,
		CountColumn:               cc.Count,
		AnnotationGeneColumn:      ac.Gene,
		AnnotationPrecursorColumn: ac.Precursor,
		AnnotationSequenceColumn:  ac.Sequence,
		CPMThreshold:              50,
		MinLibraries:              10,
		LogRatioTrim:              opts.LogRatioTrim,
		SumTrim:                   opts.SumTrim,
		Reference:                 "upperquartile",
		Workers:                   1,
		PlotFormat:                "png",
	}
}

// ParseJSONConfigFromPath overlays the JSON file at path on the defaults.
// Keys absent from the file keep their default values.
func ParseJSONConfigFromPath(path string) (Config, error) {
	out := DefaultConfig()
	out.ConfigPath = path

	f, err := os.Open(mirnaprep.ExpandHome(path))
	if err != nil {
		return out, mirnaprep.Wrap(mirnaprep.ConfigError, mirnaprep.StageConfig, path, pfx.Err(err))
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		if e, ok := err.(*json.SyntaxError); ok {
			log.Printf("syntax error at byte offset %d", e.Offset)
		}
		return out, mirnaprep.Wrap(mirnaprep.ConfigError, mirnaprep.StageConfig, path, pfx.Err(err))
	}

	out.ExpandPaths()

	return out, nil
}

// ExpandPaths interprets ~ in every path setting.
func (c *Config) ExpandPaths() {
	c.ConfigPath = mirnaprep.ExpandHome(c.ConfigPath)
	c.InputDir = mirnaprep.ExpandHome(c.InputDir)
	c.Annotation = mirnaprep.ExpandHome(c.Annotation)
	c.OutputDir = mirnaprep.ExpandHome(c.OutputDir)
	c.ImageDir = mirnaprep.ExpandHome(c.ImageDir)
	c.Snapshot = mirnaprep.ExpandHome(c.Snapshot)
}

func (c Config) Pattern() counts.Pattern {
	return counts.Pattern{Prefix: c.FilePrefix, Suffix: c.FileSuffix, IDPrefix: c.IDPrefix}
}

func (c Config) CountColumns() counts.Columns {
	return counts.Columns{Feature: c.FeatureColumn, Precursor: c.PrecursorColumn, Count: c.CountColumn}
}

func (c Config) AnnotationColumns() annotation.Columns {
	return annotation.Columns{Gene: c.AnnotationGeneColumn, Precursor: c.AnnotationPrecursorColumn, Sequence: c.AnnotationSequenceColumn}
}

// TMMOptions returns the trimming settings. The reference is resolved later,
// once the sample identifiers are known.
func (c Config) TMMOptions() tmm.Options {
	opts := tmm.DefaultOptions()
	opts.LogRatioTrim = c.LogRatioTrim
	opts.SumTrim = c.SumTrim
	return opts
}

// Validate checks everything that can be checked before any input is read.
func (c Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"input_dir", c.InputDir},
		{"annotation", c.Annotation},
		{"output_dir", c.OutputDir},
		{"image_dir", c.ImageDir},
		{"feature_column", c.FeatureColumn},
		{"precursor_column", c.PrecursorColumn},
		{"count_column", c.CountColumn},
		{"annotation_gene_column", c.AnnotationGeneColumn},
		{"annotation_precursor_column", c.AnnotationPrecursorColumn},
		{"annotation_sequence_column", c.AnnotationSequenceColumn},
	}
	for _, v := range required {
		if v.value == "" {
			return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageConfig, v.key, "must be set")
		}
	}

	if c.FilePrefix == "" && c.FileSuffix == "" {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageConfig, "file_prefix",
			"at least one of file_prefix and file_suffix must be set")
	}

	if c.CPMThreshold < 0 {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageConfig, "cpm_threshold",
			"threshold %v must not be negative", c.CPMThreshold)
	}
	if c.MinLibraries < 1 {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageConfig, "min_libraries",
			"minimum library count %d must be at least 1", c.MinLibraries)
	}

	if err := c.TMMOptions().Validate(); err != nil {
		return mirnaprep.Wrap(mirnaprep.ConfigError, mirnaprep.StageConfig, "trim", err)
	}

	if c.Workers < 1 {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageConfig, "workers",
			"need at least 1 worker, got %d", c.Workers)
	}

	if _, exists := report.PlotFormats[c.PlotFormat]; !exists {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageConfig, "plot_format",
			"%q is not one of png, svg", c.PlotFormat)
	}

	if mirnaprep.IsGoogleStorage(c.OutputDir) || mirnaprep.IsGoogleStorage(c.ImageDir) || mirnaprep.IsGoogleStorage(c.Snapshot) {
		return mirnaprep.Errorf(mirnaprep.ConfigError, mirnaprep.StageConfig, "output_dir",
			"outputs must be written to local paths")
	}

	if _, err := c.RunTimestamp(time.Now()); err != nil {
		return err
	}

	return nil
}

// Location resolves Timezone, defaulting to the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.ConfigError, mirnaprep.StageConfig, "timezone", pfx.Err(err))
	}
	return loc, nil
}

// RunTimestamp is the moment recorded for this run: Timestamp if one was
// given, otherwise now, in the configured time zone.
func (c Config) RunTimestamp(now time.Time) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}

	if c.Timestamp == "" {
		return now.In(loc), nil
	}

	ts, err := dateparse.ParseIn(c.Timestamp, loc)
	if err != nil {
		return time.Time{}, mirnaprep.Wrap(mirnaprep.ConfigError, mirnaprep.StageConfig, "timestamp", pfx.Err(err))
	}
	return ts, nil
}
