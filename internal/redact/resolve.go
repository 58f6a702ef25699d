package redact

import (
	"regexp"
	"strings"
)

// Candidate is one detector's proposal for a leaf. Text is the matched
// substring; for keypath candidates it is the whole value.
type Candidate struct {
	Source     Source
	Label      Label
	Confidence float64
	Text       string
}

// Decision is the outcome for one leaf. Label is empty when nothing fired,
// in which case Redacted equals Original.
type Decision struct {
	Keypath    string
	Original   string
	Redacted   string
	Label      Label
	Confidence float64
	Source     Source
}

// Redacts reports whether a label was chosen.
func (d Decision) Redacts() bool {
	return d.Label != ""
}

// Detect runs the three detectors against one leaf. spans are the model's
// raw output for value and may be nil when no model is available. A leaf
// whose last keypath segment is structural yields no candidates.
func Detect(keypath, value string, spans []Span) []Candidate {
	if IsStructuralKey(lastSegment(keypath)) {
		return nil
	}
	out := ModelCandidates(spans)
	if l, ok := KeypathHint(keypath); ok {
		out = append(out, Candidate{Source: SourceKeypath, Label: l, Confidence: 1.0, Text: value})
	}
	return append(out, Safeguards(value)...)
}

// Evaluate is Detect followed by Resolve. Structural leaves come back
// unredacted without consulting any rule.
func Evaluate(keypath, value string, spans []Span) Decision {
	if IsStructuralKey(lastSegment(keypath)) {
		return Decision{Keypath: keypath, Original: value, Redacted: value}
	}
	return Resolve(keypath, value, Detect(keypath, value, spans))
}

var (
	twoUpper   = regexp.MustCompile(`^[A-Z]{2}$`)
	fiveDigits = regexp.MustCompile(`^\d{5}$`)
	nameDigits = regexp.MustCompile(`^[A-Z][a-z]+[0-9]{2,}$`)
)

// Resolve folds the candidates for one leaf into a Decision.
//
// Model candidates are substituted in place and the highest-priority model
// label is kept. A keypath candidate replaces the whole value when nothing
// was chosen yet or it strictly outranks the model. Regex candidates are
// only consulted while the working text holds no bracket token or nothing
// has been redacted; the first one whose label is at least as high as the
// current choice is applied. Finally the trimmed original is checked
// against the post-fix overrides, which win unconditionally.
func Resolve(keypath, value string, candidates []Candidate) Decision {
	d := Decision{Keypath: keypath, Original: value, Redacted: value}
	redacted := false

	for _, c := range candidates {
		if c.Source != SourceModel || c.Confidence < ModelThreshold || c.Text == "" {
			continue
		}
		d.Redacted = replaceFold(d.Redacted, c.Text, c.Label.Token())
		if d.Label == "" || c.Label.Outranks(d.Label) {
			d.Label = c.Label
		}
		d.Confidence = max(d.Confidence, c.Confidence)
		d.Source = SourceModel
		redacted = true
	}

	for _, c := range candidates {
		if c.Source != SourceKeypath {
			continue
		}
		if d.Label == "" || c.Label.Outranks(d.Label) {
			d.Redacted = c.Label.Token()
			d.Label = c.Label
			d.Source = SourceKeypath
			redacted = true
		}
		break
	}

	if !redacted || !strings.Contains(d.Redacted, "[") {
		for _, c := range candidates {
			if c.Source != SourceRegex || c.Text == "" {
				continue
			}
			if d.Label != "" && c.Label.Priority() < d.Label.Priority() {
				continue
			}
			d.Redacted = strings.ReplaceAll(d.Redacted, c.Text, c.Label.Token())
			d.Label = c.Label
			d.Confidence = c.Confidence
			d.Source = SourceRegex
			break
		}
	}

	trimmed := strings.TrimSpace(value)
	switch {
	case twoUpper.MatchString(trimmed), fiveDigits.MatchString(trimmed):
		d.Label, d.Redacted = Location, Location.Token()
	case nameDigits.MatchString(trimmed):
		d.Label, d.Redacted = Name, Name.Token()
	}

	if d.Label == "" {
		d.Redacted = value
		d.Confidence = 0
		d.Source = ""
	}
	return d
}

func replaceFold(s, old, repl string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(old))
	return re.ReplaceAllLiteralString(s, repl)
}

func lastSegment(keypath string) string {
	if i := strings.LastIndex(keypath, "."); i >= 0 {
		return keypath[i+1:]
	}
	return keypath
}
