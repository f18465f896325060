package towersdk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind is the type of a variable Value.
type Kind uint8

// Kinds of Value, one per JSON type.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is one JSON value in a variable bag. Exactly one of its variants is
// set, as reported by Kind. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NumberValue returns a numeric Value. JSON numbers are all float64.
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ArrayValue returns an array Value holding vs.
func ArrayValue(vs ...Value) Value { return Value{kind: KindArray, arr: vs} }

// ObjectValue returns an object Value holding m. A nil m is an empty object.
func ObjectValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean held by v, and whether v holds one.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Number returns the number held by v.
func (v Value) Number() (float64, bool) { return v.n, v.kind == KindNumber }

// Str returns the string held by v.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Array returns the elements held by v.
func (v Value) Array() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Object returns the members held by v as a variable bag.
func (v Value) Object() (Variables, bool) { return v.obj, v.kind == KindObject }

// MarshalJSON encodes v as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("towersdk: unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes any JSON value into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingData
	}

	val, err := valueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// Variables is a free-form variable bag attached to an inventory object.
type Variables map[string]Value

// Get returns the value stored under key.
func (vs Variables) Get(key string) (Value, bool) {
	v, ok := vs[key]
	return v, ok
}

// Keys returns the keys of the bag in sorted order.
func (vs Variables) Keys() []string {
	keys := make([]string, 0, len(vs))
	for k := range vs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	errNotMapping   = errors.New("variables are not a mapping")
	errTrailingData = errors.New("unexpected data after JSON value")
)

// parseVariables reads the variables field of an entity. The controller sends
// either an object or a string holding JSON or YAML text. Null, absent and
// blank values are an empty bag.
func parseVariables(raw json.RawMessage) (Variables, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Variables{}, nil
	}

	switch trimmed[0] {
	case '{':
		return parseVariablesJSON(trimmed)
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, err
		}
		return ParseVariablesText(text)
	default:
		return nil, errNotMapping
	}
}

func parseVariablesJSON(data []byte) (Variables, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	obj, ok := v.Object()
	if !ok {
		return nil, errNotMapping
	}
	return obj, nil
}

// ParseVariablesText parses variables written as JSON or YAML text, the form
// they are edited in on the controller.
func ParseVariablesText(text string) (Variables, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "---" {
		return Variables{}, nil
	}

	if strings.HasPrefix(text, "{") {
		if vars, err := parseVariablesJSON([]byte(text)); err == nil {
			return vars, nil
		}
		// Flow-style YAML also starts with a brace
	}

	var raw any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		return Variables{}, nil
	}

	v, err := valueOf(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.Object()
	if !ok {
		return nil, errNotMapping
	}
	return obj, nil
}

// valueOf converts a decoded JSON or YAML document into a Value.
func valueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %s: %w", x, err)
		}
		return NumberValue(f), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Value{}, fmt.Errorf("number %v is not representable in JSON", x)
		}
		return NumberValue(x), nil
	case int:
		return NumberValue(float64(x)), nil
	case int64:
		return NumberValue(float64(x)), nil
	case uint64:
		return NumberValue(float64(x)), nil
	case string:
		return StringValue(x), nil
	case time.Time:
		return StringValue(x.Format(time.RFC3339Nano)), nil
	case []any:
		arr := make([]Value, 0, len(x))
		for i, item := range x {
			v, err := valueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, v)
		}
		return ArrayValue(arr...), nil
	case map[string]any:
		obj := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := valueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = v
		}
		return ObjectValue(obj), nil
	case map[any]any:
		obj := make(map[string]Value, len(x))
		for k, item := range x {
			key := fmt.Sprint(k)
			v, err := valueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			obj[key] = v
		}
		return ObjectValue(obj), nil
	default:
		return Value{}, fmt.Errorf("unsupported value of type %T", raw)
	}
}
