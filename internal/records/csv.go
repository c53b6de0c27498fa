package records

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// CSVHeader lists the export columns, one per summary field.
var CSVHeader = []string{
	"timestamp",
	"unhinted_successes",
	"avg_unhinted_sec",
	"hinted_successes",
	"total_successes",
	"failures",
	"avg_failure_sec",
	"score",
	"total_play_sec",
}

// WriteCSV writes the header and one row per entry. Missing averages are
// written as empty fields.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(e.UnhintedSuccesses),
			formatAvg(e.AvgUnhintedSec),
			strconv.Itoa(e.HintedSuccesses),
			strconv.Itoa(e.TotalSuccesses),
			strconv.Itoa(e.Failures),
			formatAvg(e.AvgFailureSec),
			strconv.Itoa(e.Score),
			strconv.Itoa(e.TotalPlaySec),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatAvg(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
