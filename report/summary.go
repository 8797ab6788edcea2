package report

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// LibrarySizeSummary describes the spread of per-sample library sizes in one
// line, for logging.
func LibrarySizeSummary(libs []int64) string {
	if len(libs) < 1 {
		return "no libraries"
	}

	data := make(stats.Float64Data, len(libs))
	for i, v := range libs {
		data[i] = float64(v)
	}

	min, _ := data.Min()
	med, _ := data.Median()
	max, _ := data.Max()
	sum, _ := data.Sum()

	return fmt.Sprintf("%d libraries, %.0f reads: min %.0f, median %.1f, max %.0f", len(libs), sum, min, med, max)
}
