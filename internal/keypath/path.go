package keypath

import (
	"regexp"
	"strconv"
	"strings"
)

// Segment is one step of a Path. Without an index the step fans out over
// every element when the member holds a list.
type Segment struct {
	Key     string
	Index   int
	Indexed bool
}

func (s Segment) String() string {
	if s.Indexed {
		return s.Key + "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is a parsed keypath such as "entry[0].resource.name.given".
type Path []Segment

var segmentRe = regexp.MustCompile(`^([^\[\]]+)(?:\[(\d+)\])?$`)

// ParsePath splits a dotted keypath into segments. A segment that does not
// fit the key[n] grammar is kept verbatim as a plain key.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		p = append(p, parseSegment(part))
	}
	return p
}

func parseSegment(s string) Segment {
	m := segmentRe.FindStringSubmatch(s)
	if m == nil {
		return Segment{Key: s}
	}
	seg := Segment{Key: m[1]}
	if m[2] != "" {
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return Segment{Key: s}
		}
		seg.Index = idx
		seg.Indexed = true
	}
	return seg
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Last returns the final segment's key, or "" for an empty path.
func Last(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Reroot swaps the leading segment of path for root. A resource-rooted path
// "Patient.name.given" rerooted at "entry[3].resource" becomes
// "entry[3].resource.name.given"; a single-segment path becomes root.
func Reroot(path, root string) string {
	_, rest, ok := strings.Cut(path, ".")
	if !ok {
		return root
	}
	return root + "." + rest
}
