package annotation

import (
	"github.com/carbocation/mirnaprep"
	"github.com/carbocation/mirnaprep/counts"
)

// AnnotatedCounts is the inner join of an annotation table and a counts
// matrix. Annotation[i] describes row i of Counts.
type AnnotatedCounts struct {
	Header     []string
	Annotation []Record
	Counts     *counts.Matrix

	// Rows present on only one side of the join, which the join discards.
	DroppedCounts     int
	DroppedAnnotation int
}

// Merge inner-joins t onto m by exact (gene, precursor) equality. Rows
// without a partner on the other side are dropped, never zero-filled. Row
// order follows m.
func Merge(t *Table, m *counts.Matrix) (*AnnotatedCounts, error) {
	byKey := make(map[counts.Key]int, len(t.Records))
	for i, rec := range t.Records {
		byKey[rec.Key()] = i
	}

	keep := make([]bool, m.NRows())
	matched := make([]Record, 0)
	for i, key := range m.Keys() {
		idx, exists := byKey[key]
		if !exists {
			continue
		}
		keep[i] = true

		rec := t.Records[idx]
		rec.Fields = append([]string(nil), rec.Fields...)
		matched = append(matched, rec)
	}

	if len(matched) < 1 {
		return nil, mirnaprep.Errorf(mirnaprep.JoinError, mirnaprep.StageMerge, "",
			"none of %d count rows matched any of %d annotation rows on (gene, precursor)", m.NRows(), len(t.Records))
	}

	return &AnnotatedCounts{
		Header:            append([]string(nil), t.Header...),
		Annotation:        matched,
		Counts:            m.SelectRows(keep),
		DroppedCounts:     m.NRows() - len(matched),
		DroppedAnnotation: len(t.Records) - len(matched),
	}, nil
}
