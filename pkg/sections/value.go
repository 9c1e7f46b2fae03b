package sections

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindStructured:
		return "structured"
	default:
		return "null"
	}
}

// Value is a single setting value. It is a tagged variant over string, number,
// boolean and structured (JSON object or array) data, so renderers can switch on
// Kind instead of type-asserting an untyped container.
//
// The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  float64
	flag bool
	data any // map[string]any or []any, normalized
}

// Settings maps setting ids to values.
type Settings map[string]Value

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Equal compares canonical encodings.
func (v Value) Equal(o Value) bool {
	a, _ := v.MarshalJSON()
	b, _ := o.MarshalJSON()
	return bytes.Equal(a, b)
}

// Structured wraps an object or array. The input is normalized through JSON so
// nested maps, slices and numbers always have the same Go representation.
func Structured(data any) (Value, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Value{}, fmt.Errorf("structured value: %w", err)
	}
	var v Value
	if err = v.UnmarshalJSON(raw); err != nil {
		return Value{}, err
	}
	return v, nil
}

// FromAny converts a decoded JSON or YAML value into a Value. Integers of any
// width become numbers; maps with non-string keys are stringified.
func FromAny(in any) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case map[string]any:
		return Value{kind: KindStructured, data: normalize(t)}
	case map[any]any:
		return Value{kind: KindStructured, data: normalize(t)}
	case []any:
		return Value{kind: KindStructured, data: normalize(t)}
	default:
		v, err := Structured(t)
		if err != nil {
			return String(fmt.Sprint(t))
		}
		return v
	}
}

// normalize converts nested YAML/JSON containers into map[string]any / []any with
// float64 numbers.
func normalize(in any) any {
	switch t := in.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = normalize(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[fmt.Sprint(k)] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalize(v)
		}
		return out
	case Value:
		return t.Interface()
	default:
		v := FromAny(t)
		if v.kind == KindStructured {
			return v.data
		}
		return v.Interface()
	}
}

func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) Num() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) BoolValue() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// Data returns the structured payload (map[string]any or []any).
func (v Value) Data() (any, bool) {
	return v.data, v.kind == KindStructured
}

// Interface returns the plain Go value for template engines.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1<<53 {
			return int(v.num)
		}
		return v.num
	case KindBool:
		return v.flag
	case KindStructured:
		return v.data
	default:
		return nil
	}
}

// String renders the value the way it would appear in markup.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindStructured:
		raw, _ := v.MarshalJSON()
		return string(raw)
	default:
		return ""
	}
}

// IsEmpty reports whether the value is null, an empty string or an empty
// container.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == ""
	case KindStructured:
		switch d := v.data.(type) {
		case map[string]any:
			return len(d) == 0
		case []any:
			return len(d) == 0
		}
	}
	return false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// MarshalJSON writes the canonical form: object keys sorted, numbers in their
// shortest representation.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v.Interface()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after value")
	}
	*v = FromAny(fromJSONNumbers(raw))
	return nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}

func fromJSONNumbers(in any) any {
	switch t := in.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		for k, val := range t {
			t[k] = fromJSONNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = fromJSONNumbers(val)
		}
		return t
	default:
		return t
	}
}

func writeCanonical(buf *bytes.Buffer, in any) error {
	switch t := in.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case int:
		buf.WriteString(strconv.Itoa(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("unsupported number %v", t)
		}
		buf.WriteString(formatNumber(t))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeCanonical(buf, FromAny(t).Interface())
	}
	return nil
}

// Canonical returns the canonical JSON encoding of the settings: keys sorted,
// values in canonical form. Equal maps always encode to equal bytes.
func (s Settings) Canonical() []byte {
	keys := s.Keys()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		_ = writeCanonical(&buf, k)
		buf.WriteByte(':')
		_ = writeCanonical(&buf, s[k].Interface())
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Keys returns the setting ids in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Map converts the settings into plain Go values for template engines.
func (s Settings) Map() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v.Interface()
	}
	return out
}

// SettingsFromMap converts decoded JSON or YAML into Settings.
func SettingsFromMap(in map[string]any) Settings {
	if in == nil {
		return nil
	}
	out := make(Settings, len(in))
	for k, v := range in {
		out[k] = FromAny(v)
	}
	return out
}

// ParseAssignment parses a "key=value" pair as used by the CLI. The value is
// decoded as JSON when possible and kept as a string otherwise.
func ParseAssignment(s string) (string, Value, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", Value{}, fmt.Errorf("invalid assignment %q, expected key=value", s)
	}
	var v Value
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		return key, String(raw), nil
	}
	return key, v, nil
}
