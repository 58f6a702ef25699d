package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/phiscrub/internal/deid"
	"github.com/dshills/phiscrub/internal/redact"
)

// SARIFWriter outputs redactions in SARIF v2.1.0 format. Original values
// are never included; results point at keypaths through logical locations.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *deid.Report) error {
	sarif := buildSARIF(report)
	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations,omitempty"`
	Properties sarifProperties `json:"properties"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	LogicalLocations []sarifLogicalLocation `json:"logicalLocations"`
}

type sarifLogicalLocation struct {
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Kind               string `json:"kind"`
}

type sarifProperties struct {
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

func buildSARIF(report *deid.Report) sarifLog {
	seen := make(map[redact.Label]bool)
	for _, r := range report.Entities {
		seen[r.Label] = true
	}
	var rules []sarifRule
	for _, l := range redact.Labels() {
		if !seen[l] {
			continue
		}
		rules = append(rules, sarifRule{
			ID:               ruleID(l),
			Name:             strings.ToLower(string(l)),
			ShortDescription: sarifMessage{Text: fmt.Sprintf("%s identifier redacted", l)},
			DefaultConfig:    sarifDefaultConfig{Level: labelToLevel(l)},
		})
	}

	results := make([]sarifResult, 0, len(report.Entities))
	for _, r := range report.Entities {
		results = append(results, sarifResult{
			RuleID: ruleID(r.Label),
			Level:  labelToLevel(r.Label),
			Message: sarifMessage{
				Text: fmt.Sprintf("%s replaced with %s (%s)", r.Keypath, r.Label.Token(), r.Source),
			},
			Locations: []sarifLocation{{
				LogicalLocations: []sarifLogicalLocation{{
					FullyQualifiedName: r.Keypath,
					Kind:               "member",
				}},
			}},
			Properties: sarifProperties{Source: string(r.Source), Confidence: r.Confidence},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:           report.Tool,
						Version:        report.Version,
						InformationURI: "https://github.com/dshills/phiscrub",
						Rules:          rules,
					},
				},
				Results: results,
			},
		},
	}
}

// labelToLevel maps the higher-disclosure labels to SARIF errors.
func labelToLevel(l redact.Label) string {
	switch {
	case l.Priority() >= redact.Location.Priority():
		return "error"
	case l.Priority() >= redact.Web.Priority():
		return "warning"
	default:
		return "note"
	}
}

func ruleID(l redact.Label) string {
	return "phiscrub/" + strings.ToLower(string(l))
}
