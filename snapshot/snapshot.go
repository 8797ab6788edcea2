// Package snapshot stores the pipeline's intermediate matrices and sample
// metadata in a single sqlite file, so a later run or an interactive session
// can pick them up without re-reading every quantification file.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/counts"
	"github.com/carbocation/mirnaprep/metadata"
	"github.com/carbocation/pfx"
	"gopkg.in/guregu/null.v3"
)

const schema = `
CREATE TABLE run (
	label TEXT NOT NULL,
	created TEXT NOT NULL,
	build TEXT NOT NULL
);
CREATE TABLE samples (
	position INTEGER NOT NULL,
	sample TEXT NOT NULL PRIMARY KEY,
	animal TEXT NOT NULL,
	time_point TEXT NOT NULL,
	group_name TEXT NOT NULL,
	lib_size INTEGER,
	norm_factor REAL
);
CREATE TABLE counts (
	stage TEXT NOT NULL,
	feature TEXT NOT NULL,
	precursor TEXT NOT NULL,
	sample TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (stage, feature, precursor, sample)
);
`

// StageCounts is the count matrix as it stood after one stage.
type StageCounts struct {
	Name   string
	Counts *counts.Matrix
}

// Snapshot is everything written to the database.
type Snapshot struct {
	Label   string
	Created time.Time

	// Build identifies the binary that produced the snapshot.
	Build string

	Samples metadata.Table
	Stages  []StageCounts
}

// Run is the single row of the run table.
type Run struct {
	Label   string `db:"label"`
	Created string `db:"created"`
	Build   string `db:"build"`
}

type sampleRow struct {
	Position   int        `db:"position"`
	Sample     string     `db:"sample"`
	Animal     string     `db:"animal"`
	TimePoint  string     `db:"time_point"`
	Group      string     `db:"group_name"`
	LibSize    null.Int   `db:"lib_size"`
	NormFactor null.Float `db:"norm_factor"`
}

type countRow struct {
	Stage     string `db:"stage"`
	Feature   string `db:"feature"`
	Precursor string `db:"precursor"`
	Sample    string `db:"sample"`
	Count     int64  `db:"count"`
}

// Write creates a fresh database at path. The database is built beside path
// and renamed into place, so an existing snapshot is only replaced by a
// complete one.
func Write(path string, snap Snapshot) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	os.Remove(tmp)

	if err := write(tmp, snap); err != nil {
		os.Remove(tmp)
		return mirnaprep.Wrap(mirnaprep.OutputError, mirnaprep.StageSnapshot, path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return mirnaprep.Wrap(mirnaprep.OutputError, mirnaprep.StageSnapshot, path, pfx.Err(err))
	}

	return nil
}

func write(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return pfx.Err(err)
	}

	db, err := open(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return pfx.Err(err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return pfx.Err(err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExec("INSERT INTO run (label, created, build) VALUES (:label, :created, :build)", Run{
		Label:   snap.Label,
		Created: snap.Created.Format(time.RFC3339),
		Build:   snap.Build,
	}); err != nil {
		return pfx.Err(err)
	}

	for i, s := range snap.Samples {
		if _, err := tx.NamedExec(`INSERT INTO samples
			(position, sample, animal, time_point, group_name, lib_size, norm_factor) VALUES
			(:position, :sample, :animal, :time_point, :group_name, :lib_size, :norm_factor)`, sampleRow{
			Position:   i,
			Sample:     s.ID,
			Animal:     s.Animal,
			TimePoint:  s.TimePoint.String(),
			Group:      s.Group.String(),
			LibSize:    s.LibSize,
			NormFactor: s.NormFactor,
		}); err != nil {
			return pfx.Err(err)
		}
	}

	stmt, err := tx.Preparex("INSERT INTO counts (stage, feature, precursor, sample, count) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return pfx.Err(err)
	}
	defer stmt.Close()

	for _, stage := range snap.Stages {
		for _, e := range stage.Counts.Long() {
			if _, err := stmt.Exec(stage.Name, e.Feature, e.Precursor, e.Sample, e.Count); err != nil {
				return pfx.Err(fmt.Errorf("stage %s, %s %s: %w", stage.Name, e.Sample, e.Key, err))
			}
		}
	}

	return pfx.Err(tx.Commit())
}

// ReadRun returns the label, creation time and build recorded in the
// snapshot.
func ReadRun(path string) (Run, error) {
	db, err := open(path)
	if err != nil {
		return Run{}, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageSnapshot, path, pfx.Err(err))
	}
	defer db.Close()

	out := Run{}
	if err := db.Get(&out, "SELECT label, created, build FROM run LIMIT 1"); err != nil {
		return Run{}, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageSnapshot, path, pfx.Err(err))
	}
	return out, nil
}

// ReadSamples returns the stored sample metadata in its original row order.
// Covariates are re-derived from each identifier.
func ReadSamples(path string) (metadata.Table, error) {
	db, err := open(path)
	if err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageSnapshot, path, pfx.Err(err))
	}
	defer db.Close()

	rows := []sampleRow{}
	if err := db.Select(&rows, "SELECT * FROM samples ORDER BY position"); err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageSnapshot, path, pfx.Err(err))
	}

	out := make(metadata.Table, 0, len(rows))
	for _, row := range rows {
		s, err := metadata.Parse(row.Sample)
		if err != nil {
			return nil, err
		}
		s.LibSize = row.LibSize
		s.NormFactor = row.NormFactor
		out = append(out, s)
	}

	return out, nil
}

// ReadCounts rebuilds the matrix stored for one stage.
func ReadCounts(path, stage string) (*counts.Matrix, error) {
	db, err := open(path)
	if err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageSnapshot, path, pfx.Err(err))
	}
	defer db.Close()

	rows := []countRow{}
	if err := db.Select(&rows, "SELECT * FROM counts WHERE stage = ?", stage); err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageSnapshot, path, pfx.Err(err))
	}
	if len(rows) < 1 {
		return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageSnapshot, path, "no counts stored for stage %q", stage)
	}

	entries := make([]counts.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, counts.Entry{
			Key:    counts.Key{Feature: row.Feature, Precursor: row.Precursor},
			Sample: row.Sample,
			Count:  row.Count,
		})
	}

	return counts.Pivot(nil, entries, false)
}
