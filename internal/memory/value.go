package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind enumerates the closed set of value shapes a content or metadata bag
// may hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

// Value is a tagged JSON-like value. Content and metadata bags are maps of
// Value rather than untyped interfaces so the merge rules stay explicit.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Arr  []Value
	Obj  Map
}

// Map is a string-keyed bag of values.
type Map map[string]Value

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// String wraps a string.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps a number.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Boolean wraps a bool.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Array wraps a list of values.
func Array(vs ...Value) Value { return Value{Kind: KindArray, Arr: vs} }

// Object wraps a map.
func Object(m Map) Value { return Value{Kind: KindObject, Obj: m} }

// IsScalar reports whether v is null, string, number or bool.
func (v Value) IsScalar() bool {
	return v.Kind != KindArray && v.Kind != KindObject
}

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindArray:
		if len(v.Arr) != len(o.Arr) {
			return false
		}
		for i := range v.Arr {
			if !v.Arr[i].Equal(o.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Obj) != len(o.Obj) {
			return false
		}
		for k, a := range v.Obj {
			b, ok := o.Obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON renders the value as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindArray:
		if v.Arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Arr)
	case KindObject:
		if v.Obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Obj)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON parses plain JSON into the tagged form.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*v = Value{}
		return nil
	}
	switch trimmed[0] {
	case 'n':
		*v = Value{Kind: KindNull}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Value{Kind: KindString, Str: s}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Value{Kind: KindBool, Bool: b}
		return nil
	case '[':
		var arr []Value
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		*v = Value{Kind: KindArray, Arr: arr}
		return nil
	case '{':
		var obj Map
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		*v = Value{Kind: KindObject, Obj: obj}
		return nil
	default:
		f, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return fmt.Errorf("parse value %q: %w", trimmed, err)
		}
		*v = Value{Kind: KindNumber, Num: f}
		return nil
	}
}

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

func (v Value) clone() Value {
	switch v.Kind {
	case KindArray:
		arr := make([]Value, len(v.Arr))
		for i, e := range v.Arr {
			arr[i] = e.clone()
		}
		return Value{Kind: KindArray, Arr: arr}
	case KindObject:
		return Value{Kind: KindObject, Obj: v.Obj.Clone()}
	default:
		return v
	}
}

// MergeMaps merges src into a copy of dst without dropping data: objects
// merge recursively, arrays concatenate and deduplicate, and conflicting
// scalars collapse into a deduplicated array of both values.
func MergeMaps(dst, src Map) Map {
	out := dst.Clone()
	if out == nil {
		out = make(Map, len(src))
	}
	for k, sv := range src {
		dv, ok := out[k]
		if !ok {
			out[k] = sv.clone()
			continue
		}
		out[k] = mergeValues(dv, sv)
	}
	return out
}

func mergeValues(a, b Value) Value {
	switch {
	case a.Kind == KindObject && b.Kind == KindObject:
		return Object(MergeMaps(a.Obj, b.Obj))
	case a.Kind == KindArray && b.Kind == KindArray:
		return Value{Kind: KindArray, Arr: mergeArrays(a.Arr, b.Arr)}
	case a.Kind == KindArray:
		return Value{Kind: KindArray, Arr: mergeArrays(a.Arr, []Value{b})}
	case b.Kind == KindArray:
		return Value{Kind: KindArray, Arr: mergeArrays([]Value{a}, b.Arr)}
	case a.Equal(b):
		return a
	default:
		return Value{Kind: KindArray, Arr: mergeArrays([]Value{a}, []Value{b})}
	}
}

// mergeArrays concatenates then deduplicates. Scalars dedupe by value;
// arrays and objects are always preserved.
func mergeArrays(a, b []Value) []Value {
	out := make([]Value, 0, len(a)+len(b))
	for _, v := range append(append([]Value{}, a...), b...) {
		if v.IsScalar() && containsScalar(out, v) {
			continue
		}
		out = append(out, v.clone())
	}
	return out
}

func containsScalar(vs []Value, v Value) bool {
	for _, e := range vs {
		if e.IsScalar() && e.Equal(v) {
			return true
		}
	}
	return false
}

// FlattenText collects the textual surface of a map: string values, number
// renderings and key names, space-joined. Used by the token-overlap and
// keyword heuristics.
func (m Map) FlattenText() string {
	var buf bytes.Buffer
	for k, v := range m {
		buf.WriteString(k)
		buf.WriteByte(' ')
		v.flattenText(&buf)
	}
	return buf.String()
}

func (v Value) flattenText(buf *bytes.Buffer) {
	switch v.Kind {
	case KindString:
		buf.WriteString(v.Str)
		buf.WriteByte(' ')
	case KindNumber:
		buf.WriteString(strconv.FormatFloat(v.Num, 'f', -1, 64))
		buf.WriteByte(' ')
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.Bool))
		buf.WriteByte(' ')
	case KindArray:
		for _, e := range v.Arr {
			e.flattenText(buf)
		}
	case KindObject:
		for k, e := range v.Obj {
			buf.WriteString(k)
			buf.WriteByte(' ')
			e.flattenText(buf)
		}
	}
}

// ScalarKey renders a scalar as a comparable string, used when grouping
// shared factor values. Returns false for arrays and objects.
func (v Value) ScalarKey() (string, bool) {
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	case KindNull:
		return "null", true
	default:
		return "", false
	}
}
