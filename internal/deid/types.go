package deid

import (
	"math"

	"github.com/dshills/phiscrub/internal/fhirdoc"
	"github.com/dshills/phiscrub/internal/redact"
)

// AuditRow records one redacted leaf. Keypath is resource-rooted
// (e.g. "Patient.name.given"); Confidence is rounded to three decimals.
type AuditRow struct {
	Keypath    string        `json:"keypath"`
	Original   string        `json:"original"`
	Label      redact.Label  `json:"label"`
	Confidence float64       `json:"confidence"`
	Source     redact.Source `json:"source"`
}

// NewAuditRow converts a decision into its audit form. A zero confidence
// is reported as 1.0 and a decision with no source as a model decision.
func NewAuditRow(d redact.Decision) AuditRow {
	conf := d.Confidence
	if conf == 0 {
		conf = 1.0
	}
	src := d.Source
	if src == "" {
		src = redact.SourceModel
	}
	return AuditRow{
		Keypath:    d.Keypath,
		Original:   d.Original,
		Label:      d.Label,
		Confidence: math.Round(conf*1000) / 1000,
		Source:     src,
	}
}

// MeetsThreshold returns true if label is at or above the threshold label.
// "none" and "" never match; "any" matches every label.
func MeetsThreshold(l redact.Label, threshold string) bool {
	switch threshold {
	case "", "none":
		return false
	case "any":
		return true
	}
	t, ok := redact.ParseLabel(threshold)
	if !ok {
		return false
	}
	return l.Priority() >= t.Priority()
}

// ValidThreshold reports whether s is an accepted failOn value.
func ValidThreshold(s string) bool {
	if s == "" || s == "none" || s == "any" {
		return true
	}
	_, ok := redact.ParseLabel(s)
	return ok
}

// InputInfo describes what was scrubbed.
type InputInfo struct {
	Name    string `json:"name,omitempty"`
	Entries int    `json:"entries"`
}

// Summary provides an overview of the audit rows.
type Summary struct {
	Total            int            `json:"total"`
	ByLabel          map[string]int `json:"byLabel"`
	BySource         map[string]int `json:"bySource"`
	HighestLabel     redact.Label   `json:"highestLabel,omitempty"`
	ResourcesScanned int            `json:"resourcesScanned"`
	ResourcesSkipped int            `json:"resourcesSkipped"`
	LeavesEvaluated  int            `json:"leavesEvaluated"`
	ModelFailures    int            `json:"modelFailures"`
}

// Timing contains performance metrics.
type Timing struct {
	ModelMs int64 `json:"modelMs"`
	TotalMs int64 `json:"totalMs"`
}

// Report is the top-level output structure. Document is the redacted copy;
// it is written separately from the audit report.
type Report struct {
	Tool     string        `json:"tool"`
	Version  string        `json:"version"`
	RunID    string        `json:"runId"`
	Input    InputInfo     `json:"input"`
	Summary  Summary       `json:"summary"`
	Entities []AuditRow    `json:"entities"`
	Timing   Timing        `json:"timing"`
	Document *fhirdoc.Node `json:"-"`
}

// ComputeSummary fills the label and source counts from rows. Resource and
// leaf counters are left to the caller.
func ComputeSummary(rows []AuditRow) Summary {
	s := Summary{
		Total:    len(rows),
		ByLabel:  map[string]int{},
		BySource: map[string]int{},
	}
	for _, r := range rows {
		s.ByLabel[string(r.Label)]++
		s.BySource[string(r.Source)]++
		if s.HighestLabel == "" || r.Label.Outranks(s.HighestLabel) {
			s.HighestLabel = r.Label
		}
	}
	return s
}

// Findings reports whether any row meets the threshold.
func (r *Report) Findings(threshold string) bool {
	for _, row := range r.Entities {
		if MeetsThreshold(row.Label, threshold) {
			return true
		}
	}
	return false
}
