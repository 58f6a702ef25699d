package fhirdoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ParseError reports input that is not a well-formed document. Offset is the
// byte offset of a syntax error, or -1 when the input parsed but does not
// have the shape of a bundle.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("parse error: %v", e.Err)
	}
	return fmt.Sprintf("parse error at offset %d: %v", e.Offset, e.Err)
}

// ShapeError returns a *ParseError for a document that is valid JSON but
// not a usable bundle.
func ShapeError(format string, args ...any) *ParseError {
	return &ParseError{Offset: -1, Err: fmt.Errorf(format, args...)}
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is, or wraps, a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parse decodes a single JSON value. Object member order and number
// literals are preserved. Trailing data after the value is an error.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeValue(dec)
	if err != nil {
		return nil, &ParseError{Offset: dec.InputOffset(), Err: err}
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected %v after top-level value", tok)
		}
		return nil, &ParseError{Offset: dec.InputOffset(), Err: err}
	}
	return n, nil
}

func decodeValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &Node{Kind: Object, Fields: []Field{}}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", kt)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &Node{Kind: Array, Items: []*Node{}}
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.Items = append(n.Items, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", rune(v))
	case string:
		return NewString(v), nil
	case json.Number:
		return NewNumber(v.String()), nil
	case bool:
		return NewBool(v), nil
	case nil:
		return NewNull(), nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// MarshalJSON encodes n compactly, preserving member order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent is MarshalJSON with indentation applied.
func MarshalIndent(n *Node, prefix, indent string) ([]byte, error) {
	raw, err := n.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func encode(buf *bytes.Buffer, n *Node) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.Kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if n.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if n.Str == "" {
			return errors.New("number node has no literal")
		}
		buf.WriteString(n.Str)
	case String:
		return encodeString(buf, n.Str)
	case Array:
		buf.WriteByte('[')
		for i, it := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, it); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, f := range n.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, f.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown node kind %d", n.Kind)
	}
	return nil
}

// encodeString writes s as a JSON string without HTML escaping, so narrative
// XHTML such as <div> survives a round trip untouched.
func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
