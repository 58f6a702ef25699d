package output

import (
	"io"
	"strings"

	"github.com/dshills/phiscrub/internal/deid"
	"github.com/dshills/phiscrub/internal/redact"
)

// MarkdownWriter outputs an audit summary suitable for a ticket or PR comment.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *deid.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("## phiscrub audit\n\n")
	if report.Input.Name != "" {
		ew.printf("Input: `%s` | ", report.Input.Name)
	}
	ew.printf("Run: `%s` | Entries: %d (%d scanned, %d skipped)\n\n",
		report.RunID, report.Input.Entries, s.ResourcesScanned, s.ResourcesSkipped)

	ew.printf("| Label | Count |\n")
	ew.printf("|-------|-------|\n")
	for _, l := range redact.Labels() {
		if n := s.ByLabel[string(l)]; n > 0 {
			ew.printf("| %s | %d |\n", l, n)
		}
	}
	ew.printf("| **Total** | **%d** |\n\n", s.Total)

	if s.Total == 0 {
		ew.println("No PHI detected. :white_check_mark:")
		return ew.err
	}

	grouped := groupByLabel(report.Entities)
	for _, l := range redact.Labels() {
		rows := grouped[l]
		if len(rows) == 0 {
			continue
		}
		ew.printf("<details>\n<summary>%s (%d)</summary>\n\n", l, len(rows))
		ew.printf("| Keypath | Original | Source | Confidence |\n")
		ew.printf("|---------|----------|--------|------------|\n")
		for _, r := range rows {
			ew.printf("| `%s` | %s | %s | %.3f |\n",
				r.Keypath, mdEscape(r.Original), r.Source, r.Confidence)
		}
		ew.printf("\n</details>\n\n")
	}

	ew.printf("*Completed in %dms (classifier: %dms)*\n",
		report.Timing.TotalMs, report.Timing.ModelMs)
	return ew.err
}

var mdReplacer = strings.NewReplacer("|", `\|`, "\n", " ", "\r", " ", "`", "\\`")

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
