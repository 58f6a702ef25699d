package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/dshills/phiscrub/internal/deid"
)

// CSVWriter outputs the audit table, one row per redacted leaf.
type CSVWriter struct{}

var csvHeader = []string{"keypath", "original", "label", "confidence", "source"}

func (c *CSVWriter) Write(w io.Writer, report *deid.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	for _, r := range report.Entities {
		rec := []string{
			r.Keypath,
			r.Original,
			string(r.Label),
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			string(r.Source),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing CSV: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
