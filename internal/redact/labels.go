package redact

import "strings"

// Label is a PHI category.
type Label string

const (
	Name     Label = "NAME"
	Contact  Label = "CONTACT"
	Location Label = "LOCATION"
	Date     Label = "DATE"
	Web      Label = "WEB"
	ID       Label = "ID"
	Other    Label = "OTHER"
)

var labelPriority = map[Label]int{
	Name:     6,
	Contact:  5,
	Location: 4,
	Date:     3,
	Web:      2,
	ID:       1,
	Other:    0,
}

// Priority returns the label's rank; higher wins. The empty label ranks
// below OTHER.
func (l Label) Priority() int {
	if p, ok := labelPriority[l]; ok {
		return p
	}
	return -1
}

// Outranks reports whether l has strictly higher priority than o.
func (l Label) Outranks(o Label) bool {
	return l.Priority() > o.Priority()
}

// Token returns the replacement text for the label, e.g. "[NAME]".
func (l Label) Token() string {
	return "[" + string(l) + "]"
}

// Labels returns every label from highest to lowest priority.
func Labels() []Label {
	return []Label{Name, Contact, Location, Date, Web, ID, Other}
}

// ParseLabel parses a label name case-insensitively.
func ParseLabel(s string) (Label, bool) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := labelPriority[l]
	return l, ok
}

// normalizeOrder is checked in sequence so that a raw label mentioning two
// categories always normalizes the same way.
var normalizeOrder = []Label{Name, Location, Date, Contact, ID, Web}

// Normalize maps a raw model label such as "B-NAME" or "patient_name" onto a
// Label by case-insensitive substring match. Anything unrecognized is OTHER.
func Normalize(raw string) Label {
	up := strings.ToUpper(raw)
	for _, l := range normalizeOrder {
		if strings.Contains(up, string(l)) {
			return l
		}
	}
	return Other
}

// Source names the detector that produced a decision.
type Source string

const (
	SourceModel   Source = "model"
	SourceKeypath Source = "keypath"
	SourceRegex   Source = "regex"
)
