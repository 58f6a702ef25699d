package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dshills/phiscrub/internal/deid"
	"github.com/dshills/phiscrub/internal/redact"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *deid.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("phiscrub de-identification")
	if report.Input.Name != "" {
		ew.printf(" (%s)", report.Input.Name)
	}
	ew.println("")
	ew.printf("Run: %s\n", report.RunID)
	ew.printf("Entries: %d (%d scanned, %d skipped)\n",
		report.Input.Entries, s.ResourcesScanned, s.ResourcesSkipped)
	ew.println(strings.Repeat("─", 60))
	ew.printf("Redactions: %d total", s.Total)
	if s.Total > 0 {
		var parts []string
		for _, l := range redact.Labels() {
			if n := s.ByLabel[string(l)]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, l))
			}
		}
		ew.printf(" (%s)", strings.Join(parts, ", "))
	}
	ew.println("")
	if s.ModelFailures > 0 {
		ew.printf("Classifier failures: %d (keypath and regex rules applied)\n", s.ModelFailures)
	}
	ew.println(strings.Repeat("─", 60))

	if s.Total == 0 {
		ew.println("\nNo PHI detected.")
		return ew.err
	}

	grouped := groupByLabel(report.Entities)
	for _, l := range redact.Labels() {
		rows := grouped[l]
		if len(rows) == 0 {
			continue
		}
		ew.printf("\n%s %s\n", l.Token(), l)
		ew.println(strings.Repeat("─", 40))

		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Keypath < rows[j].Keypath
		})
		for _, r := range rows {
			ew.printf("  %-40s %-8s %5.1f%%  %q\n",
				r.Keypath, r.Source, r.Confidence*100, r.Original)
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms (classifier: %dms)\n",
		report.Timing.TotalMs, report.Timing.ModelMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func groupByLabel(rows []deid.AuditRow) map[redact.Label][]deid.AuditRow {
	m := make(map[redact.Label][]deid.AuditRow)
	for _, r := range rows {
		m[r.Label] = append(m[r.Label], r)
	}
	return m
}
