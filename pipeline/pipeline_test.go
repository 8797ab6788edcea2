package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carbocation/mirnaprep"
	"github.com/google/go-cmp/cmp"
)

var fixtureCounts = []struct {
	Feature   string
	Precursor string
	Counts    map[string]int
}{
	{"bta-let-7a-5p", "bta-let-7a-1", map[string]int{"6621_pre1": 100000, "6621_1": 120000, "7000_pre2": 90000, "7000_2": 150000}},
	{"bta-miR-21-5p", "bta-mir-21", map[string]int{"6621_pre1": 50000, "6621_1": 30000, "7000_pre2": 70000, "7000_2": 45000}},
	{"bta-miR-1", "bta-mir-1", map[string]int{"6621_pre1": 0, "6621_1": 0, "7000_pre2": 0, "7000_2": 0}},
	{"bta-miR-99a-5p", "bta-mir-99a", map[string]int{"6621_pre1": 1, "6621_1": 0, "7000_pre2": 2, "7000_2": 1}},
	{"bta-miR-novel", "bta-mir-novel", map[string]int{"6621_pre1": 10, "6621_1": 10, "7000_pre2": 10, "7000_2": 10}},
}

const fixtureAnnotation = "miRNA\tsequence\tchr\tstart\tend\tstrand\tprecursor\n" +
	"bta-let-7a-5p\tUGAGGUAGUAGGUUGUAUAGUU\t8\t100\t122\t+\tbta-let-7a-1\n" +
	"bta-miR-21-5p\tUAGCUUAUCAGACUGAUGUUGA\t19\t9\t31\t+\tbta-mir-21\n" +
	"bta-miR-1\tUGGAAUGUAAAGAAGUAUGUAU\t13\t50\t72\t-\tbta-mir-1\n" +
	"bta-miR-99a-5p\tAACCCGUAGAUCCGAUCUUGUG\t1\t5\t27\t+\tbta-mir-99a\n" +
	"bta-miR-extra\tUGAGGUAGUAGGUUGUAUAGUU\t2\t1\t23\t+\tbta-mir-extra\n"

// writeFixture writes one quantification file per sample, in random order,
// plus an unrelated file and the annotation table.
func writeFixture(t *testing.T, rng *rand.Rand) Config {
	t.Helper()

	root := t.TempDir()
	input := filepath.Join(root, "quant")
	if err := os.MkdirAll(input, 0755); err != nil {
		t.Fatal(err)
	}

	samples := []string{"6621_pre1", "6621_1", "7000_pre2", "7000_2"}
	rng.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })

	for _, sample := range samples {
		rows := rng.Perm(len(fixtureCounts))

		b := strings.Builder{}
		b.WriteString("#miRNA\tread_count\tprecursor\ttotal\tseq\tseq(norm)\n")
		for _, i := range rows {
			v := fixtureCounts[i]
			n := v.Counts[sample]
			b.WriteString(fmt.Sprintf("%s\t%d.00\t%s\t%d\t%d\t%.2f\n", v.Feature, n, v.Precursor, n, n, float64(n)/10))
		}

		path := filepath.Join(input, "miRNAs_expressed_"+sample+".csv")
		if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(input, "README.txt"), []byte("not a sample"), 0644); err != nil {
		t.Fatal(err)
	}

	ann := filepath.Join(root, "mature.tsv")
	if err := os.WriteFile(ann, []byte(fixtureAnnotation), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.InputDir = input
	cfg.Annotation = ann
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.ImageDir = filepath.Join(root, "img")
	cfg.MinLibraries = 2
	cfg.Timezone = "UTC"
	cfg.Timestamp = "2021-06-01 10:00:00"

	return cfg
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRunEndToEnd(t *testing.T) {
	cfg := writeFixture(t, rand.New(rand.NewSource(1)))

	res, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	expectedSamples := []string{"X6621_1", "X6621_pre1", "X7000_2", "X7000_pre2"}
	if diff := cmp.Diff(expectedSamples, res.Raw.Counts.Samples()); diff != "" {
		t.Errorf("sample columns (-want +got):\n%s", diff)
	}

	// The novel feature has no annotation and the extra annotation has no
	// counts
	if res.Raw.DroppedCounts != 1 || res.Raw.DroppedAnnotation != 1 {
		t.Errorf("dropped %d count rows and %d annotation rows, expected 1 and 1", res.Raw.DroppedCounts, res.Raw.DroppedAnnotation)
	}
	if res.Raw.Counts.NRows() != 4 || res.NonZero.Counts.NRows() != 3 || res.Filtered.Counts.NRows() != 2 {
		t.Errorf("rows raw/nonzero/filtered = %d/%d/%d, expected 4/3/2",
			res.Raw.Counts.NRows(), res.NonZero.Counts.NRows(), res.Filtered.Counts.NRows())
	}

	logSum := 0.0
	for _, s := range res.Library.Samples {
		if !s.LibSize.Valid || !s.NormFactor.Valid {
			t.Fatalf("%s: library size or factor unset", s.ID)
		}
		f := s.NormFactor.Float64
		if !(f > 0) || math.IsInf(f, 0) {
			t.Errorf("%s: factor %v is not finite and positive", s.ID, f)
		}
		logSum += math.Log(f)
	}
	if math.Abs(logSum) > 1e-9 {
		t.Errorf("factors do not have a geometric mean of 1 (sum of logs %v)", logSum)
	}

	meta := readCSV(t, filepath.Join(cfg.OutputDir, "TMM_sample_metadata.csv"))
	metaSamples := make([]string, 0)
	for _, row := range meta[1:] {
		metaSamples = append(metaSamples, row[0])
	}

	filtered := readCSV(t, filepath.Join(cfg.OutputDir, "TMM_filtered_counts.csv"))
	header := filtered[0]
	if diff := cmp.Diff(metaSamples, header[len(header)-len(metaSamples):]); diff != "" {
		t.Errorf("filtered count columns do not follow metadata rows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"miRNA", "sequence", "chr", "start", "end", "strand", "precursor", "identical_sequence"}, header[:8]); diff != "" {
		t.Errorf("annotation columns (-want +got):\n%s", diff)
	}
	if len(filtered) != 3 {
		t.Errorf("expected 2 filtered rows plus a header, got %d lines", len(filtered))
	}

	expectedMeta := []string{"X6621_1", "X6621", "W1", "W1"}
	if diff := cmp.Diff(expectedMeta, meta[1][:4]); diff != "" {
		t.Errorf("metadata row (-want +got):\n%s", diff)
	}

	raw := readCSV(t, filepath.Join(cfg.OutputDir, "TMM_raw_annotated_counts.csv"))
	if len(raw) != 5 {
		t.Errorf("expected 4 raw rows plus a header, got %d lines", len(raw))
	}

	when := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, path := range res.Outputs {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if !info.ModTime().Equal(when) {
			t.Errorf("%s: modification time %v, expected %v", path, info.ModTime(), when)
		}
	}

	if _, err := os.Stat(filepath.Join(cfg.ImageDir, "TMM_log10_counts_density.png")); err != nil {
		t.Errorf("density plot missing: %v", err)
	}
}

func TestRunIsIndependentOfOrderAndWorkers(t *testing.T) {
	var outputs []string

	for i, workers := range []int{1, 3} {
		cfg := writeFixture(t, rand.New(rand.NewSource(int64(10+i))))
		cfg.Workers = workers

		if _, err := Run(context.Background(), cfg, nil); err != nil {
			t.Fatal(err)
		}

		b := strings.Builder{}
		for _, name := range []string{"TMM_raw_annotated_counts.csv", "TMM_sample_metadata.csv", "TMM_filtered_counts.csv"} {
			data, err := os.ReadFile(filepath.Join(cfg.OutputDir, name))
			if err != nil {
				t.Fatal(err)
			}
			b.Write(data)
		}
		outputs = append(outputs, b.String())
	}

	if diff := cmp.Diff(outputs[0], outputs[1]); diff != "" {
		t.Errorf("outputs differ between runs (-first +second):\n%s", diff)
	}
}

func TestRunFailures(t *testing.T) {
	t.Run("no overlap with annotation", func(t *testing.T) {
		cfg := writeFixture(t, rand.New(rand.NewSource(2)))
		if err := os.WriteFile(cfg.Annotation, []byte("miRNA\tsequence\tprecursor\nother\tACGU\tother-1\n"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := Run(context.Background(), cfg, nil)
		if !errors.Is(err, mirnaprep.JoinError) {
			t.Fatalf("expected a JoinError, got %v", err)
		}
		if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
			t.Error("no output should be written when the join fails")
		}
	})

	t.Run("unparseable sample", func(t *testing.T) {
		cfg := writeFixture(t, rand.New(rand.NewSource(3)))
		src := filepath.Join(cfg.InputDir, "miRNAs_expressed_7000_2.csv")
		if err := os.Rename(src, filepath.Join(cfg.InputDir, "miRNAs_expressed_7000_3.csv")); err != nil {
			t.Fatal(err)
		}

		_, err := Run(context.Background(), cfg, nil)
		if !errors.Is(err, mirnaprep.ParseError) {
			t.Fatalf("expected a ParseError, got %v", err)
		}
		var e *mirnaprep.Error
		if !errors.As(err, &e) || e.Record != "X7000_3" {
			t.Errorf("expected the error to name X7000_3, got %v", err)
		}
	})

	t.Run("sample without rows", func(t *testing.T) {
		cfg := writeFixture(t, rand.New(rand.NewSource(7)))
		path := filepath.Join(cfg.InputDir, "miRNAs_expressed_7000_2.csv")
		if err := os.WriteFile(path, []byte("#miRNA\tread_count\tprecursor\ttotal\tseq\tseq(norm)\n"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := Run(context.Background(), cfg, nil)
		if !errors.Is(err, mirnaprep.IngestionError) {
			t.Fatalf("expected an IngestionError, got %v", err)
		}
		var e *mirnaprep.Error
		if !errors.As(err, &e) || e.Record != "X7000_2" {
			t.Errorf("expected the error to name X7000_2, got %v", err)
		}
		if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
			t.Error("no output should be written when a sample is empty")
		}
	})

	t.Run("no files", func(t *testing.T) {
		cfg := writeFixture(t, rand.New(rand.NewSource(4)))
		cfg.FilePrefix = "nothing_"

		_, err := Run(context.Background(), cfg, nil)
		if !errors.Is(err, mirnaprep.IngestionError) {
			t.Fatalf("expected an IngestionError, got %v", err)
		}
	})

	t.Run("too many libraries required", func(t *testing.T) {
		cfg := writeFixture(t, rand.New(rand.NewSource(5)))
		cfg.MinLibraries = 10

		_, err := Run(context.Background(), cfg, nil)
		if !errors.Is(err, mirnaprep.ConfigError) {
			t.Fatalf("expected a ConfigError, got %v", err)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		cfg := writeFixture(t, rand.New(rand.NewSource(6)))
		cfg.Reference = "X9999_1"

		_, err := Run(context.Background(), cfg, nil)
		if !errors.Is(err, mirnaprep.ConfigError) {
			t.Fatalf("expected a ConfigError, got %v", err)
		}
	})
}
