package counts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"cloud.google.com/go/storage"
	"github.com/carbocation/mirnaprep"
)

// Pattern selects quantification files by name and turns the name into a
// sample identifier.
type Pattern struct {
	// Prefix and Suffix must both match the file's base name. They are
	// stripped to form the sample identifier.
	Prefix string
	Suffix string

	// IDPrefix is prepended to identifiers that start with a digit, so that
	// every identifier is a valid column name.
	IDPrefix string
}

// SampleFile is one sequencing library's quantification file.
type SampleFile struct {
	Path   string
	Sample string
}

// SampleID returns the identifier for a file base name, and false if the name
// does not match the pattern.
func (p Pattern) SampleID(base string) (string, bool) {
	if !strings.HasPrefix(base, p.Prefix) || !strings.HasSuffix(base, p.Suffix) {
		return "", false
	}
	if len(base) <= len(p.Prefix)+len(p.Suffix) {
		return "", false
	}

	id := strings.TrimSuffix(strings.TrimPrefix(base, p.Prefix), p.Suffix)
	if unicode.IsDigit([]rune(id)[0]) {
		id = p.IDPrefix + id
	}

	return id, true
}

// Match selects the paths whose base names fit the pattern. The result is
// sorted by sample identifier, whatever the order of paths.
func Match(paths []string, p Pattern) ([]SampleFile, error) {
	out := make([]SampleFile, 0, len(paths))
	seen := make(map[string]string)

	for _, path := range paths {
		id, ok := p.SampleID(mirnaprep.BaseName(path))
		if !ok {
			continue
		}

		if prior, exists := seen[id]; exists {
			return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageDiscover, id,
				"files %s and %s both map to this sample identifier", prior, path)
		}
		seen[id] = path

		out = append(out, SampleFile{Path: path, Sample: id})
	}

	if len(out) < 1 {
		return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageDiscover, "",
			"no files matched prefix %q and suffix %q", p.Prefix, p.Suffix)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Sample < out[j].Sample })

	return out, nil
}

// Discover lists dir (a local directory or a gs:// prefix) and returns the
// quantification files matching p.
func Discover(ctx context.Context, dir string, p Pattern, client *storage.Client) ([]SampleFile, error) {
	paths, err := mirnaprep.List(ctx, dir, client)
	if err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageDiscover, dir, err)
	}

	return Match(paths, p)
}

func (s SampleFile) String() string {
	return fmt.Sprintf("%s (%s)", s.Sample, s.Path)
}
