// Package jsvalue is the value model exchanged between native modules and
// the script runtime: a JSON-like tagged union plus the Reader and Writer
// handed to module delegates.
package jsvalue

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInt64
	KindDouble
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable script value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

func Null() Value                { return Value{} }
func Boolean(b bool) Value       { return Value{kind: KindBoolean, b: b} }
func Int64(i int64) Value        { return Value{kind: KindInt64, i: i} }
func Double(f float64) Value     { return Value{kind: KindDouble, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: slices.Clone(items)} }

// Object returns an object value holding a copy of props.
func Object(props map[string]Value) Value {
	return Value{kind: KindObject, obj: maps.Clone(props)}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsString() string { return v.s }

// AsInt64 returns the integer value, truncating doubles.
func (v Value) AsInt64() int64 {
	if v.kind == KindDouble {
		return int64(v.f)
	}
	return v.i
}

// AsDouble returns the numeric value as a float64.
func (v Value) AsDouble() float64 {
	if v.kind == KindInt64 {
		return float64(v.i)
	}
	return v.f
}

// IsNumber reports whether v is an Int64 or a Double.
func (v Value) IsNumber() bool { return v.kind == KindInt64 || v.kind == KindDouble }

// AsArray returns the array elements. The slice must not be modified.
func (v Value) AsArray() []Value { return v.arr }

// AsObject returns the object properties. The map must not be modified.
func (v Value) AsObject() map[string]Value { return v.obj }

// Get returns the named property of an object value, or null.
func (v Value) Get(key string) Value { return v.obj[key] }

// Len returns the number of array elements or object properties.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Interface converts v to plain Go values: nil, bool, int64, float64, string,
// []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBoolean:
		return v.b
	case KindInt64:
		return v.i
	case KindDouble:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality. Int64 and Double compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		if v.kind == o.kind && v.kind == KindInt64 {
			return v.i == o.i
		}
		return v.AsDouble() == o.AsDouble()
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindArray:
		return slices.EqualFunc(v.arr, o.arr, Value.Equal)
	case KindObject:
		return maps.EqualFunc(v.obj, o.obj, Value.Equal)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return fmt.Sprint(v.f)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return fmt.Sprint(v.Interface())
	}
}
