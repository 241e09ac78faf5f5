package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParamType is the declared type of a tunable parameter.
type ParamType int

const (
	TypeUnknown ParamType = iota
	TypeFloat
	TypeInt
	TypeBool
	TypeString
)

// ParseParamType maps a type-name token (float, int, bool, str) to a ParamType.
func ParseParamType(token string) ParamType {
	switch token {
	case "float":
		return TypeFloat
	case "int":
		return TypeInt
	case "bool":
		return TypeBool
	case "str":
		return TypeString
	default:
		return TypeUnknown
	}
}

func (t ParamType) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeString:
		return "str"
	default:
		return "unknown"
	}
}

// Kind tags the active arm of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindFloat
	KindInt
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is a parameter value: null, float, integer, boolean or string.
// The zero Value is null.
type Value struct {
	kind Kind
	f    float64
	i    int64
	b    bool
	s    string
}

func Null() Value { return Value{} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool { return v.b }
func (v Value) Str() string { return v.s }
func (v Value) Int() int64 { return v.i }
func (v Value) IsNumber() bool { return v.kind == KindFloat || v.kind == KindInt }

// Number returns the numeric value of a float or integer Value.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Equal reports whether two values are the same. Integers and floats compare
// numerically; booleans never equal numbers.
func (v Value) Equal(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		if v.kind == KindInt && o.kind == KindInt {
			return v.i == o.i
		}
		a, _ := v.Number()
		b, _ := o.Number()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	default:
		return true
	}
}

// Interface returns the value as a plain Go value (nil, float64, int64, bool, string).
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return formatFloat(v.f)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return "None"
	}
}

// PythonLiteral renders the value as a Python source token.
func (v Value) PythonLiteral() string {
	switch v.kind {
	case KindFloat:
		return formatFloat(v.f)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "None"
	}
}

// formatFloat keeps a fraction or exponent so the token reads back as a float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return nil, fmt.Errorf("value: %v is not representable in JSON", v.f)
		}
		return []byte(formatFloat(v.f)), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a plain Go value into a Value. json.Number values become
// integers unless they carry a fraction or exponent.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case int32:
		return Int(int64(t)), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case json.Number:
		if !strings.ContainsAny(t.String(), ".eE") {
			if i, err := t.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: %w", err)
		}
		return Float(f), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", x)
	}
}

// ParseValue interprets text typed by a user according to the declared type.
// With TypeUnknown the literal syntax decides: true/false, integer, float, else string.
func ParseValue(text string, typ ParamType) (Value, error) {
	text = strings.TrimSpace(text)
	switch typ {
	case TypeFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as float: %w", text, err)
		}
		return Float(f), nil
	case TypeInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as int: %w", text, err)
		}
		return Int(i), nil
	case TypeBool:
		switch strings.ToLower(text) {
		case "true", "1", "yes", "on":
			return Bool(true), nil
		case "false", "0", "no", "off":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("parse %q as bool", text)
	case TypeString:
		if unq, err := strconv.Unquote(text); err == nil {
			return String(unq), nil
		}
		return String(text), nil
	}
	switch strings.ToLower(text) {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i), nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Float(f), nil
	}
	return String(text), nil
}

// Metadata keys recognized in a parameter entry.
const (
	KeyValue       = "value"
	KeyType        = "type"
	KeyUnit        = "unit"
	KeyDescription = "description"
	KeyMin         = "min"
	KeyMax         = "max"
)

// RequiredKeys lists the metadata keys every parameter entry should declare.
var RequiredKeys = []string{KeyValue, KeyType, KeyUnit, KeyDescription, KeyMin, KeyMax}

// ParameterSpec is the declarative metadata for one tunable value.
type ParameterSpec struct {
	Name        string
	Value       Value
	Type        ParamType
	TypeToken   string // raw type marker as written, empty when absent
	Unit        string
	Description string
	Min         *float64
	Max         *float64
	Keys        []string // metadata keys literally present, in source order
	Line        int      // 1-based line of the entry key
}

// HasKey reports whether the entry declared the metadata key.
func (p ParameterSpec) HasKey(key string) bool {
	for _, k := range p.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Category is a named, ordered group of parameter names.
type Category struct {
	Name   string
	Params []string
}

// DefaultCategory receives parameters that precede every header.
const DefaultCategory = "Default"

// CategoryMap is an ordered partition of parameter names.
type CategoryMap []Category

// Names returns category names in order.
func (m CategoryMap) Names() []string {
	out := make([]string, len(m))
	for i, c := range m {
		out[i] = c.Name
	}
	return out
}

// Lookup returns the parameter names of a category.
func (m CategoryMap) Lookup(name string) ([]string, bool) {
	for _, c := range m {
		if c.Name == name {
			return c.Params, true
		}
	}
	return nil, false
}

// CategoryOf returns the category a parameter belongs to.
func (m CategoryMap) CategoryOf(param string) (string, bool) {
	for _, c := range m {
		for _, p := range c.Params {
			if p == param {
				return c.Name, true
			}
		}
	}
	return "", false
}

// ChangeRecord is one parameter mutation.
type ChangeRecord struct {
	Name string
	Old  Value
	New  Value
	At   time.Time
}

// CommandBatch groups changes that are undone and redone as one unit.
type CommandBatch struct {
	Changes     []ChangeRecord
	Description string
}

// Update is one entry of a batch mutation request.
type Update struct {
	Name  string
	Value Value
}

// ParamChange is the payload of EventParamChanged.
type ParamChange struct {
	Name string
	Old  Value
	New  Value
}
