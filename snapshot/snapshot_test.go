//go:build cgo
// +build cgo

package snapshot

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/counts"
	"github.com/carbocation/mirnaprep/metadata"
	"github.com/google/go-cmp/cmp"
)

func TestSnapshotRoundTrip(t *testing.T) {
	m, err := counts.NewMatrix(
		[]string{"X6621_1", "X6621_pre1"},
		[]counts.Key{{Feature: "bta-let-7a-5p", Precursor: "bta-let-7a-1"}, {Feature: "bta-miR-21-5p", Precursor: "bta-mir-21"}},
		[][]int64{{1200, 900}, {0, 99}},
	)
	if err != nil {
		t.Fatal(err)
	}

	samples, err := metadata.Derive(m.Samples())
	if err != nil {
		t.Fatal(err)
	}
	samples, _ = samples.WithLibrarySizes(m.LibrarySizes())

	created := time.Date(2022, 5, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "run.sqlite")

	err = Write(path, Snapshot{
		Label:   "TMM",
		Created: created,
		Build:   "test build",
		Samples: samples,
		Stages:  []StageCounts{{Name: "raw", Counts: m}},
	})
	if err != nil {
		t.Fatal(err)
	}

	run, err := ReadRun(path)
	if err != nil {
		t.Fatal(err)
	}
	if run.Label != "TMM" || run.Created != "2022-05-01T12:00:00Z" || run.Build != "test build" {
		t.Errorf("unexpected run %+v", run)
	}

	gotSamples, err := ReadSamples(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(samples, gotSamples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
	if gotSamples[0].NormFactor.Valid {
		t.Error("an unset normalization factor should stay unset")
	}

	gotCounts, err := ReadCounts(path, "raw")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Long(), gotCounts.Long()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadCounts(path, "filtered"); !errors.Is(err, mirnaprep.IngestionError) {
		t.Errorf("expected an IngestionError for a missing stage, got %v", err)
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sqlite")

	for _, label := range []string{"first", "second"} {
		if err := Write(path, Snapshot{Label: label, Created: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	run, err := ReadRun(path)
	if err != nil {
		t.Fatal(err)
	}
	if run.Label != "second" {
		t.Errorf("got label %q, expected the second write to win", run.Label)
	}
}
