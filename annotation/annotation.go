// Package annotation loads the miRNA/precursor reference table, derives the
// identical_sequence field and joins the table onto a counts matrix.
package annotation

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/counts"
	"github.com/carbocation/pfx"
)

// IdenticalSequenceColumn is the name of the derived column in output tables.
const IdenticalSequenceColumn = "identical_sequence"

// Columns names the header fields that carry the join key and the sequence.
type Columns struct {
	Gene      string
	Precursor string
	Sequence  string
}

func DefaultColumns() Columns {
	return Columns{
		Gene:      "miRNA",
		Precursor: "precursor",
		Sequence:  "sequence",
	}
}

// Record is one annotation row. Fields holds every column verbatim in header
// order, including the key and sequence columns.
type Record struct {
	Gene              string
	Precursor         string
	Sequence          string
	Fields            []string
	IdenticalSequence string
}

func (r Record) Key() counts.Key {
	return counts.Key{Feature: r.Gene, Precursor: r.Precursor}
}

// Table is the loaded annotation. It is never modified after Load; derived
// tables are new values.
type Table struct {
	Header  []string
	Records []Record
}

// Load parses a tab-delimited annotation table with a header row. Quote
// characters have no special meaning.
func Load(r io.Reader, cols Columns) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		header    []string
		geneIdx   int
		precIdx   int
		seqIdx    int
		seen      = make(map[counts.Key]int)
		records   = make([]Record, 0)
		headerMap = make(map[string]int)
	)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		row := strings.Split(line, "\t")

		if header == nil {
			header = row
			for i, name := range row {
				headerMap[name] = i
			}

			var err error
			if geneIdx, err = requireColumn(headerMap, cols.Gene); err != nil {
				return nil, err
			}
			if precIdx, err = requireColumn(headerMap, cols.Precursor); err != nil {
				return nil, err
			}
			if seqIdx, err = requireColumn(headerMap, cols.Sequence); err != nil {
				return nil, err
			}
			continue
		}

		if len(row) != len(header) {
			return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageAnnotate, fmt.Sprintf("line %d", lineNo),
				"expected %d fields, found %d", len(header), len(row))
		}

		rec := Record{
			Gene:      row[geneIdx],
			Precursor: row[precIdx],
			Sequence:  row[seqIdx],
			Fields:    row,
		}
		if prior, exists := seen[rec.Key()]; exists {
			return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageAnnotate, rec.Key().String(),
				"duplicate annotation on lines %d and %d", prior, lineNo)
		}
		seen[rec.Key()] = lineNo

		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, mirnaprep.Wrap(mirnaprep.IngestionError, mirnaprep.StageAnnotate, "", pfx.Err(err))
	}

	if header == nil {
		return nil, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageAnnotate, "", "annotation has no header row")
	}

	return &Table{Header: header, Records: records}, nil
}

func requireColumn(header map[string]int, name string) (int, error) {
	idx, exists := header[name]
	if !exists {
		return 0, mirnaprep.Errorf(mirnaprep.IngestionError, mirnaprep.StageAnnotate, name, "annotation is missing a required column")
	}
	return idx, nil
}

// WithIdenticalSequence returns a copy of t whose records carry the
// comma-joined gene ids of every record with the same sequence, in table row
// order. The field is derived from Gene and Sequence alone, so applying this
// twice gives the same result as applying it once.
func WithIdenticalSequence(t *Table) *Table {
	bySequence := make(map[string][]string)
	for _, rec := range t.Records {
		bySequence[rec.Sequence] = append(bySequence[rec.Sequence], rec.Gene)
	}

	joined := make(map[string]string, len(bySequence))
	for seq, genes := range bySequence {
		joined[seq] = strings.Join(genes, ",")
	}

	out := &Table{
		Header:  append([]string(nil), t.Header...),
		Records: make([]Record, len(t.Records)),
	}
	for i, rec := range t.Records {
		rec.Fields = append([]string(nil), rec.Fields...)
		rec.IdenticalSequence = joined[rec.Sequence]
		out.Records[i] = rec
	}

	return out
}
