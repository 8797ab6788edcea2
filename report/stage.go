package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/pfx"
)

// Stage collects the artifacts of one pipeline checkpoint and writes them all
// or none of them.
type Stage struct {
	Name string

	// ModTime, if set, is applied to every committed artifact.
	ModTime time.Time

	artifacts []artifact
}

type artifact struct {
	path  string
	write func(io.Writer) error
}

func NewStage(name string) *Stage {
	return &Stage{Name: name}
}

// Add registers an artifact. Nothing is written until Commit.
func (s *Stage) Add(path string, write func(io.Writer) error) {
	s.artifacts = append(s.artifacts, artifact{path: path, write: write})
}

// Paths lists the registered artifact paths.
func (s *Stage) Paths() []string {
	out := make([]string, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a.path)
	}
	return out
}

// Commit renders every artifact to a temporary file beside its destination.
// Only if all of them succeed are they renamed into place; otherwise the
// temporary files are removed and no destination is touched.
func (s *Stage) Commit() error {
	temps := make([]string, 0, len(s.artifacts))
	cleanup := func() {
		for _, tmp := range temps {
			os.Remove(tmp)
		}
	}

	for _, a := range s.artifacts {
		tmp, err := writeTemp(a)
		if tmp != "" {
			temps = append(temps, tmp)
		}
		if err != nil {
			cleanup()
			return mirnaprep.Wrap(mirnaprep.OutputError, mirnaprep.StageReport, a.path,
				fmt.Errorf("stage %s: %w", s.Name, err))
		}

		if !s.ModTime.IsZero() {
			if err := os.Chtimes(tmp, s.ModTime, s.ModTime); err != nil {
				cleanup()
				return mirnaprep.Wrap(mirnaprep.OutputError, mirnaprep.StageReport, a.path,
					fmt.Errorf("stage %s: %w", s.Name, pfx.Err(err)))
			}
		}
	}

	for i, a := range s.artifacts {
		if err := os.Rename(temps[i], a.path); err != nil {
			// Roll back what was already moved into place
			for _, done := range s.artifacts[:i] {
				os.Remove(done.path)
			}
			temps = temps[i:]
			cleanup()
			return mirnaprep.Wrap(mirnaprep.OutputError, mirnaprep.StageReport, a.path,
				fmt.Errorf("stage %s: %w", s.Name, pfx.Err(err)))
		}
	}

	return nil
}

func writeTemp(a artifact) (string, error) {
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", pfx.Err(err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(a.path)+".*.tmp")
	if err != nil {
		return "", pfx.Err(err)
	}

	if err := f.Chmod(0644); err != nil {
		f.Close()
		return f.Name(), pfx.Err(err)
	}

	if err := a.write(f); err != nil {
		f.Close()
		return f.Name(), err
	}

	return f.Name(), pfx.Err(f.Close())
}
