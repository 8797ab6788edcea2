package counts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/pfx"
)

// Columns names the header fields retained from each quantification file.
// Every other column (total, seq, seq(norm), ...) is discarded.
type Columns struct {
	Feature   string
	Precursor string
	Count     string
}

// DefaultColumns matches the miRDeep2 quantifier's per-sample output.
func DefaultColumns() Columns {
	return Columns{
		Feature:   "#miRNA",
		Precursor: "precursor",
		Count:     "read_count",
	}
}

// Key is the compound (feature, precursor) row identifier.
type Key struct {
	Feature   string
	Precursor string
}

func (k Key) String() string {
	return k.Feature + "/" + k.Precursor
}

// Less orders keys by feature, then by precursor, in byte order.
func (k Key) Less(o Key) bool {
	if k.Feature != o.Feature {
		return k.Feature < o.Feature
	}
	return k.Precursor < o.Precursor
}

// Entry is one (feature, sample, count) observation of the long table.
type Entry struct {
	Key
	Sample string
	Count  int64
}

// LoadSample parses one quantification table.
func LoadSample(r io.Reader, file SampleFile, cols Columns) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageLoad, file.Path, pfx.Err(err))
	}

	split := splitter(delimiter(data))

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		header   map[string]int
		colIdx   [3]int
		minWidth int
		seen     = make(map[Key]int)
		out      = make([]Entry, 0)
	)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		row := split(line)

		if header == nil {
			header = make(map[string]int, len(row))
			for i, name := range row {
				header[strings.TrimSpace(name)] = i
			}
			for i, name := range []string{cols.Feature, cols.Precursor, cols.Count} {
				idx, exists := header[name]
				if !exists {
					return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageLoad, file.Path,
						"missing required column %q (header: %v)", name, row)
				}
				colIdx[i] = idx
				if idx+1 > minWidth {
					minWidth = idx + 1
				}
			}
			continue
		}

		record := fmt.Sprintf("%s:%d", file.Path, lineNo)
		if len(row) < minWidth {
			return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageLoad, record,
				"expected at least %d fields, found %d", minWidth, len(row))
		}

		key := Key{
			Feature:   strings.TrimSpace(row[colIdx[0]]),
			Precursor: strings.TrimSpace(row[colIdx[1]]),
		}
		if prior, exists := seen[key]; exists {
			return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageLoad, record,
				"duplicate row for %s (first seen on line %d)", key, prior)
		}
		seen[key] = lineNo

		count, err := ParseCount(row[colIdx[2]])
		if err != nil {
			return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageLoad, record, err)
		}

		out = append(out, Entry{Key: key, Sample: file.Sample, Count: count})
	}
	if err := scanner.Err(); err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageLoad, file.Path, pfx.Err(err))
	}

	if header == nil {
		return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageLoad, file.Path, "file has no header row")
	}

	return out, nil
}

// ParseCount parses a raw read count. Integral decimals such as "12.00" are
// accepted; negative, fractional and non-finite values are not.
func ParseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative count %q", s)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("count %q is not a number", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("count %q is not finite", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative count %q", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("count %q is not an integer", s)
	}
	if f > math.MaxInt64/2 {
		return 0, fmt.Errorf("count %q is out of range", s)
	}

	return int64(f), nil
}

// delimiter is a tab or, for anything else, a space meaning "split on runs
// of whitespace". A tab in the header line settles it. The detector is only
// trusted when it also picks a tab, since on header-only or one-row files it
// can land on '#' or ')'.
func delimiter(data []byte) rune {
	header := bytes.TrimLeft(data, "\r\n")
	if i := bytes.IndexByte(header, '\n'); i >= 0 {
		header = header[:i]
	}
	if bytes.IndexByte(header, '\t') >= 0 {
		return '\t'
	}

	if mirnaprep.DetermineDelimiter(bytes.NewReader(data), ' ') == '\t' {
		return '\t'
	}
	return ' '
}

func splitter(delim rune) func(string) []string {
	if delim == ' ' {
		return strings.Fields
	}

	sep := string(delim)
	return func(line string) []string {
		return strings.Split(line, sep)
	}
}

// Opener returns a reader for the (decompressed) contents of a path.
type Opener func(ctx context.Context, path string) (io.ReadCloser, error)

// LoadAll loads every file with up to workers files in flight. Entries are
// returned in file order regardless of which file finishes first, and the
// error for the earliest failing file is reported.
func LoadAll(ctx context.Context, files []SampleFile, cols Columns, workers int, open Opener) ([]Entry, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([][]Entry, len(files))
	errs := make([]error, len(files))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = loadOne(ctx, files[i], cols, open)
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	total := 0
	for i := range files {
		if errs[i] != nil {
			return nil, errs[i]
		}
		total += len(results[i])
	}

	out := make([]Entry, 0, total)
	for _, res := range results {
		out = append(out, res...)
	}

	return out, nil
}

func loadOne(ctx context.Context, file SampleFile, cols Columns, open Opener) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageLoad, file.Path, err)
	}

	rc, err := open(ctx, file.Path)
	if err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageLoad, file.Path, err)
	}
	defer rc.Close()

	return LoadSample(rc, file, cols)
}
