package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/tmm"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.InputDir = "quant"
	cfg.Annotation = "mature.tsv"
	return cfg
}

func TestParseJSONConfigFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
	"input_dir": "gs://bucket/quant",
	"annotation": "/data/mature.tsv",
	"label": "run1",
	"cpm_threshold": 25,
	"reference": "geomean",
	"histogram": true
}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseJSONConfigFromPath(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.InputDir != "gs://bucket/quant" || cfg.Label != "run1" || cfg.CPMThreshold != 25 || !cfg.Histogram {
		t.Errorf("file values not applied: %+v", cfg)
	}

	// Keys absent from the file keep their defaults
	if cfg.MinLibraries != 10 || cfg.LogRatioTrim != 0.3 || cfg.SumTrim != 0.05 || cfg.FeatureColumn != "#miRNA" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected a valid config, got %v", err)
	}
}

func TestParseJSONConfigErrors(t *testing.T) {
	dir := t.TempDir()

	for name, body := range map[string]string{
		"syntax":      `{"input_dir": `,
		"unknown key": `{"input_directory": "quant"}`,
		"wrong type":  `{"min_libraries": "ten"}`,
	} {
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := ParseJSONConfigFromPath(path); !errors.Is(err, mirnaprep.ConfigError) {
			t.Errorf("%s: expected a ConfigError, got %v", name, err)
		}
	}

	if _, err := ParseJSONConfigFromPath(filepath.Join(dir, "missing.json")); !errors.Is(err, mirnaprep.ConfigError) {
		t.Errorf("missing file: expected a ConfigError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	for _, v := range []struct {
		Name   string
		Mutate func(*Config)
		Record string
	}{
		{"no input", func(c *Config) { c.InputDir = "" }, "input_dir"},
		{"no annotation", func(c *Config) { c.Annotation = "" }, "annotation"},
		{"no count column", func(c *Config) { c.CountColumn = "" }, "count_column"},
		{"no pattern", func(c *Config) { c.FilePrefix, c.FileSuffix = "", "" }, "file_prefix"},
		{"negative threshold", func(c *Config) { c.CPMThreshold = -1 }, "cpm_threshold"},
		{"zero libraries", func(c *Config) { c.MinLibraries = 0 }, "min_libraries"},
		{"trim too large", func(c *Config) { c.LogRatioTrim = 0.5 }, "trim"},
		{"negative sum trim", func(c *Config) { c.SumTrim = -0.1 }, "trim"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"gif", func(c *Config) { c.PlotFormat = "gif" }, "plot_format"},
		{"remote output", func(c *Config) { c.OutputDir = "gs://bucket/out" }, "output_dir"},
		{"bad zone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }, "timezone"},
		{"bad timestamp", func(c *Config) { c.Timestamp = "not a time" }, "timestamp"},
	} {
		cfg := validConfig()
		v.Mutate(&cfg)

		err := cfg.Validate()
		if !errors.Is(err, mirnaprep.ConfigError) {
			t.Errorf("%s: expected a ConfigError, got %v", v.Name, err)
			continue
		}

		var e *mirnaprep.Error
		if errors.As(err, &e) && e.Record != v.Record {
			t.Errorf("%s: error names %q, expected %q", v.Name, e.Record, v.Record)
		}
	}

	if err := validConfig().Validate(); err != nil {
		t.Errorf("defaults plus inputs should validate, got %v", err)
	}
}

func TestRunTimestamp(t *testing.T) {
	now := time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)

	cfg := validConfig()
	cfg.Timezone = "America/New_York"

	got, err := cfg.RunTimestamp(now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) || got.Location().String() != "America/New_York" {
		t.Errorf("got %v, expected %v in America/New_York", got, now)
	}

	cfg.Timestamp = "2021-06-01 10:00:00"
	got, err = cfg.RunTimestamp(now)
	if err != nil {
		t.Fatal(err)
	}

	ny, _ := time.LoadLocation("America/New_York")
	expected := time.Date(2021, 6, 1, 10, 0, 0, 0, ny)
	if !got.Equal(expected) {
		t.Errorf("got %v, expected %v", got, expected)
	}
}

func TestTMMOptions(t *testing.T) {
	cfg := validConfig()
	cfg.LogRatioTrim = 0.2
	cfg.SumTrim = 0.1

	opts := cfg.TMMOptions()
	expected := tmm.DefaultOptions()
	expected.LogRatioTrim = 0.2
	expected.SumTrim = 0.1

	if opts != expected {
		t.Errorf("got %+v, expected %+v", opts, expected)
	}
}
