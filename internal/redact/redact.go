package redact

import (
	"regexp"
	"strings"
)

type safeguard struct {
	label   Label
	pattern *regexp.Regexp
	score   float64
}

// safeguardPatterns are regex heuristics for PHI shapes the model tends to
// miss. Order matters: the first eligible pattern wins.
var safeguardPatterns = []safeguard{
	// Synthetic names: capitalized word followed by digits, optionally twice
	{Name, regexp.MustCompile(`\b[A-Z][a-z]+[0-9]{2,}(?:\s[A-Z][a-z]+[0-9]{2,})?\b`), 1.0},
	// "City, ST"
	{Location, regexp.MustCompile(`\b[A-Z][a-z]+,\s[A-Z]{2}\b`), 1.0},
	// Phone and fax numbers with optional extension
	{Contact, regexp.MustCompile(`((?:\(\d{3}\)\s\d{3}-\d{4}|\b\d{1,3}-\d{3}-\d{3}-\d{4}|\b\d{3}\.\d{3}\.\d{4}|\b\d{3}-\d{3}-\d{4})(\s?x\d{3,5})?)`), 1.0},
	// SSN-like digit groups
	{ID, regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`), 1.0},
	// Driver's license style: letter plus eight digits
	{ID, regexp.MustCompile(`\b[A-Z]\d{8}\b`), 1.0},
	// Passport style
	{ID, regexp.MustCompile(`\bX\d{8}X\b`), 1.0},
	// Bare postal codes
	{Location, regexp.MustCompile(`\b\d{5}\b`), 1.0},
	// UUIDs
	{ID, regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), 1.0},
}

// Safeguards runs every safeguard pattern over value and returns one
// candidate per matching pattern, in declared order. Each candidate carries
// the pattern's first match.
func Safeguards(value string) []Candidate {
	var out []Candidate
	for _, sg := range safeguardPatterns {
		m := sg.pattern.FindString(value)
		if m == "" {
			continue
		}
		out = append(out, Candidate{
			Source:     SourceRegex,
			Label:      sg.label,
			Confidence: sg.score,
			Text:       m,
		})
	}
	return out
}

type hint struct {
	label   Label
	pattern *regexp.Regexp
}

// keypathHints are checked against the lowercased keypath; first match wins.
var keypathHints = []hint{
	{Name, regexp.MustCompile(`name|maiden|given|family|prefix|suffix`)},
	{Location, regexp.MustCompile(`address|city|state|postal|geo`)},
	{Date, regexp.MustCompile(`birth|date`)},
	{Contact, regexp.MustCompile(`phone|fax|email|telecom|contact`)},
	{ID, regexp.MustCompile(`id|identifier|license|account|passport`)},
	{Web, regexp.MustCompile(`url|uri|web|internet|ip|image|photo`)},
}

// KeypathHint returns the label implied by the keypath, if any.
func KeypathHint(keypath string) (Label, bool) {
	kp := strings.ToLower(keypath)
	for _, h := range keypathHints {
		if h.pattern.MatchString(kp) {
			return h.label, true
		}
	}
	return "", false
}

var structuralKeys = []string{
	"resourceType", "reference", "status", "code", "coding", "display",
	"system", "text", "id", "div", "valueBoolean", "gender",
	"multipleBirthBoolean", "use", "clinicalStatus", "verificationStatus",
}

// StructuralKeys returns a copy of the built-in structural key list.
func StructuralKeys() []string {
	return append([]string(nil), structuralKeys...)
}

// IsStructuralKey reports whether segment names a schema field that never
// carries PHI. The comparison is exact and case-insensitive. Extra keys
// extend the built-in list.
func IsStructuralKey(segment string, extra ...string) bool {
	for _, k := range structuralKeys {
		if strings.EqualFold(segment, k) {
			return true
		}
	}
	for _, k := range extra {
		if strings.EqualFold(segment, k) {
			return true
		}
	}
	return false
}
