package fhirdoc

// Kind identifies which variant a Node holds.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Node is one value in a document tree. Which fields are meaningful depends
// on Kind: Str holds the text of a String or the literal of a Number, Bool
// holds a Bool, Items holds Array elements and Fields holds Object members
// in document order.
type Node struct {
	Kind   Kind
	Str    string
	Bool   bool
	Items  []*Node
	Fields []Field
}

// Field is a single object member.
type Field struct {
	Key   string
	Value *Node
}

// KV is shorthand for building an object member.
func KV(key string, v *Node) Field {
	return Field{Key: key, Value: v}
}

// NewNull returns a JSON null.
func NewNull() *Node { return &Node{Kind: Null} }

// NewBool returns a boolean node.
func NewBool(b bool) *Node { return &Node{Kind: Bool, Bool: b} }

// NewNumber wraps a JSON number literal such as "12" or "1.50". The literal
// is kept verbatim so encoding reproduces it exactly.
func NewNumber(literal string) *Node { return &Node{Kind: Number, Str: literal} }

// NewString returns a string node holding s verbatim.
func NewString(s string) *Node { return &Node{Kind: String, Str: s} }

// NewArray returns an array of items. With no items it encodes as [] rather
// than null.
func NewArray(items ...*Node) *Node {
	if items == nil {
		items = []*Node{}
	}
	return &Node{Kind: Array, Items: items}
}

// NewObject returns an object with fields in the given order. A repeated
// key keeps its first position and takes the last value.
func NewObject(fields ...Field) *Node {
	n := &Node{Kind: Object}
	for _, f := range fields {
		n.Set(f.Key, f.Value)
	}
	return n
}

// IsString reports whether n is a non-nil String node.
func (n *Node) IsString() bool {
	return n != nil && n.Kind == String
}

// Get returns the member stored under key. It reports false when n is not an
// object or the key is absent.
func (n *Node) Get(key string) (*Node, bool) {
	i := n.indexOf(key)
	if i < 0 {
		return nil, false
	}
	return n.Fields[i].Value, true
}

// Set replaces the member stored under key, or appends it when absent. A
// later duplicate key in the input therefore wins while keeping the position
// of the first occurrence.
func (n *Node) Set(key string, v *Node) {
	if n == nil || n.Kind != Object {
		return
	}
	if i := n.indexOf(key); i >= 0 {
		n.Fields[i].Value = v
		return
	}
	n.Fields = append(n.Fields, Field{Key: key, Value: v})
}

// Keys returns the member names of an object in document order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != Object {
		return nil
	}
	keys := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		keys[i] = f.Key
	}
	return keys
}

func (n *Node) indexOf(key string) int {
	if n == nil || n.Kind != Object {
		return -1
	}
	for i, f := range n.Fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Scalar returns the textual form of a String, Number or Bool leaf.
func (n *Node) Scalar() (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case String, Number:
		return n.Str, true
	case Bool:
		if n.Bool {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// Clone returns a deep copy of n. Mutating the copy never affects n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Str: n.Str, Bool: n.Bool}
	if n.Items != nil {
		c.Items = make([]*Node, len(n.Items))
		for i, it := range n.Items {
			c.Items[i] = it.Clone()
		}
	}
	if n.Fields != nil {
		c.Fields = make([]Field, len(n.Fields))
		for i, f := range n.Fields {
			c.Fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
		}
	}
	return c
}

// Equal reports whether a and b hold the same tree. Object members must
// appear in the same order.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Null:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Number, String:
		return a.Str == b.Str
	case Array:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Key != b.Fields[i].Key || !Equal(a.Fields[i].Value, b.Fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
