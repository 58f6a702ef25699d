package redact

import (
	"strings"
	"unicode"
)

// ModelThreshold is the minimum score a model span needs to contribute.
const ModelThreshold = 0.8

// subwordPrefix marks a token that continues the previous word.
const subwordPrefix = "##"

// Span is one entity reported by the classification model. Start and End are
// character offsets into the classified text.
type Span struct {
	Text  string  `json:"word"`
	Label string  `json:"entity_group"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// MergeSpans collapses runs of adjacent spans that share a normalized label.
// A span merges into its predecessor when it starts at most one character
// after the predecessor ends. Sub-word pieces and digit runs are glued on
// directly; whole words are joined with a space. The merged span keeps the
// higher score and the later end offset. Sub-word markers are removed.
func MergeSpans(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if Normalize(s.Label) == Normalize(prev.Label) && s.Start <= prev.End+1 {
				piece := strings.ReplaceAll(s.Text, subwordPrefix, "")
				if strings.HasPrefix(s.Text, subwordPrefix) || (isDigits(prev.Text) && isDigits(s.Text)) {
					prev.Text += piece
				} else {
					prev.Text = strings.TrimSpace(prev.Text + " " + piece)
				}
				prev.End = s.End
				prev.Score = max(prev.Score, s.Score)
				continue
			}
		}
		s.Text = strings.ReplaceAll(s.Text, subwordPrefix, "")
		out = append(out, s)
	}
	return out
}

// ModelCandidates merges spans and keeps those at or above ModelThreshold.
// Spans with no text are dropped.
func ModelCandidates(spans []Span) []Candidate {
	var out []Candidate
	for _, s := range MergeSpans(spans) {
		if s.Score < ModelThreshold || strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, Candidate{
			Source:     SourceModel,
			Label:      Normalize(s.Label),
			Confidence: s.Score,
			Text:       s.Text,
		})
	}
	return out
}

func isDigits(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
