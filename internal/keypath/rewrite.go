package keypath

import "github.com/dshills/phiscrub/internal/fhirdoc"

// Rewriter writes replacement text into its own deep copy of a document.
// The document handed to NewRewriter is never modified, so callers can diff
// the original against Document() at any point.
type Rewriter struct {
	doc *fhirdoc.Node
}

// NewRewriter takes a deep copy of doc to mutate.
func NewRewriter(doc *fhirdoc.Node) *Rewriter {
	return &Rewriter{doc: doc.Clone()}
}

// Document returns the rewritten copy.
func (r *Rewriter) Document() *fhirdoc.Node {
	return r.doc
}

// Set writes value at path and returns how many string leaves changed hands.
// Zero means the path did not resolve: a missing key, an out-of-range index
// or a target that is not text. That is not an error; optional fields vary
// from resource to resource.
func (r *Rewriter) Set(path, value string) int {
	return r.SetPath(ParsePath(path), value)
}

// SetPath is Set for an already parsed path.
func (r *Rewriter) SetPath(p Path, value string) int {
	return set(r.doc, p, value)
}

// Rewrite is the one-shot form: it copies doc, writes value at path and
// returns the copy together with the number of leaves written.
func Rewrite(doc *fhirdoc.Node, path, value string) (*fhirdoc.Node, int) {
	r := NewRewriter(doc)
	n := r.Set(path, value)
	return r.Document(), n
}

func set(n *fhirdoc.Node, segs Path, value string) int {
	if n == nil || len(segs) == 0 {
		return 0
	}
	switch n.Kind {
	case fhirdoc.Array:
		written := 0
		for _, it := range n.Items {
			written += set(it, segs, value)
		}
		return written
	case fhirdoc.Object:
		seg := segs[0]
		child, ok := n.Get(seg.Key)
		if !ok {
			return 0
		}
		if len(segs) == 1 {
			return overwrite(child, seg, value)
		}
		if seg.Indexed {
			if child.Kind != fhirdoc.Array || seg.Index >= len(child.Items) {
				return 0
			}
			return set(child.Items[seg.Index], segs[1:], value)
		}
		return set(child, segs[1:], value)
	}
	return 0
}

// overwrite writes the final segment. A list of strings is overwritten as a
// whole even when the segment carries an index; the index only selects an
// element in mixed lists.
func overwrite(target *fhirdoc.Node, seg Segment, value string) int {
	if allStrings(target) {
		return overwriteLeaf(target, value)
	}
	if seg.Indexed {
		if target.Kind != fhirdoc.Array || seg.Index >= len(target.Items) {
			return 0
		}
		return overwriteLeaf(target.Items[seg.Index], value)
	}
	return overwriteLeaf(target, value)
}

func allStrings(n *fhirdoc.Node) bool {
	if n.Kind != fhirdoc.Array {
		return false
	}
	for _, it := range n.Items {
		if !it.IsString() {
			return false
		}
	}
	return true
}

// overwriteLeaf replaces text in place. A list is overwritten element by
// element; anything that is not a string keeps its value and its kind.
func overwriteLeaf(n *fhirdoc.Node, value string) int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case fhirdoc.String:
		n.Str = value
		return 1
	case fhirdoc.Array:
		written := 0
		for _, it := range n.Items {
			written += overwriteLeaf(it, value)
		}
		return written
	}
	return 0
}
