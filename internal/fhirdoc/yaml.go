package fhirdoc

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// ParseYAML decodes a YAML document into a Node tree. Mapping order is
// preserved. YAML is accepted so bundles maintained by hand in fixtures can
// be scrubbed without converting them first.
func ParseYAML(data []byte) (*Node, error) {
	var v any
	if err := yaml.UnmarshalWithOptions(data, &v, yaml.UseOrderedMap()); err != nil {
		return nil, &ParseError{Offset: -1, Err: err}
	}
	n, err := fromValue(v)
	if err != nil {
		return nil, &ParseError{Offset: -1, Err: err}
	}
	return n, nil
}

// Decode parses data as JSON when it starts with '{' or '[' and as YAML
// otherwise.
func Decode(data []byte) (*Node, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return Parse(trimmed)
	}
	return ParseYAML(data)
}

func fromValue(v any) (*Node, error) {
	switch t := v.(type) {
	case nil:
		return NewNull(), nil
	case string:
		return NewString(t), nil
	case bool:
		return NewBool(t), nil
	case int:
		return NewNumber(strconv.Itoa(t)), nil
	case int64:
		return NewNumber(strconv.FormatInt(t, 10)), nil
	case uint64:
		return NewNumber(strconv.FormatUint(t, 10)), nil
	case float64:
		return NewNumber(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case time.Time:
		return NewString(t.Format(time.RFC3339)), nil
	case []any:
		arr := NewArray()
		for _, it := range t {
			child, err := fromValue(it)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, child)
		}
		return arr, nil
	case yaml.MapSlice:
		obj := &Node{Kind: Object, Fields: []Field{}}
		for _, item := range t {
			child, err := fromValue(item.Value)
			if err != nil {
				return nil, err
			}
			obj.Set(fmt.Sprint(item.Key), child)
		}
		return obj, nil
	case map[string]any:
		// Unordered maps only appear for nested merge keys; keep whatever
		// order the decoder produced.
		obj := &Node{Kind: Object, Fields: []Field{}}
		for k, val := range t {
			child, err := fromValue(val)
			if err != nil {
				return nil, err
			}
			obj.Set(k, child)
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unsupported YAML value of type %T", v)
}
