package keypath

import (
	"iter"
	"strings"

	"github.com/dshills/phiscrub/internal/fhirdoc"
)

// Leaf is one flattened scalar: the dotted keypath that leads to it, its
// textual value and the kind of node it came from.
type Leaf struct {
	Path  string
	Value string
	Kind  fhirdoc.Kind
}

// Flatten walks n depth-first and yields every non-blank String, Number and
// Bool leaf. The prefix segments are joined in front of every path, so the
// caller usually passes the resource type.
//
// Arrays are descended without adding an index segment. An object member
// named "url" whose value starts with "http" contributes the last
// "/"-separated fragment of that URL as its segment instead of "url", which
// turns extension paths into readable names such as "extension.us-core-race".
//
// The returned sequence is lazy and may be ranged over any number of times;
// it never mutates n.
func Flatten(n *fhirdoc.Node, prefix ...string) iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		path := make([]string, len(prefix), len(prefix)+8)
		copy(path, prefix)
		walk(n, path, yield)
	}
}

// Collect drains Flatten into a slice.
func Collect(n *fhirdoc.Node, prefix ...string) []Leaf {
	var out []Leaf
	for leaf := range Flatten(n, prefix...) {
		out = append(out, leaf)
	}
	return out
}

func walk(n *fhirdoc.Node, path []string, yield func(Leaf) bool) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case fhirdoc.Object:
		for _, f := range n.Fields {
			seg := f.Key
			if f.Key == "url" && f.Value.IsString() && strings.HasPrefix(f.Value.Str, "http") {
				seg = urlFragment(f.Value.Str)
			}
			if !walk(f.Value, append(path, seg), yield) {
				return false
			}
		}
	case fhirdoc.Array:
		for _, it := range n.Items {
			if !walk(it, path, yield) {
				return false
			}
		}
	case fhirdoc.String, fhirdoc.Number, fhirdoc.Bool:
		s, _ := n.Scalar()
		if strings.TrimSpace(s) == "" {
			return true
		}
		return yield(Leaf{Path: strings.Join(path, "."), Value: s, Kind: n.Kind})
	}
	return true
}

func urlFragment(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
