package property

import (
	"fmt"
	"reflect"
	"slices"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindUInt8
	KindInt16
	KindUInt16
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindSingle
	KindDouble
	KindChar16
	KindBoolean
	KindString
	KindDateTime
	KindTimeSpan
	KindGuid
	KindPoint
	KindSize
	KindRect
	KindObject
)

var kindNames = [...]string{
	KindEmpty:    "Empty",
	KindUInt8:    "UInt8",
	KindInt16:    "Int16",
	KindUInt16:   "UInt16",
	KindInt32:    "Int32",
	KindUInt32:   "UInt32",
	KindInt64:    "Int64",
	KindUInt64:   "UInt64",
	KindSingle:   "Single",
	KindDouble:   "Double",
	KindChar16:   "Char16",
	KindBoolean:  "Boolean",
	KindString:   "String",
	KindDateTime: "DateTime",
	KindTimeSpan: "TimeSpan",
	KindGuid:     "Guid",
	KindPoint:    "Point",
	KindSize:     "Size",
	KindRect:     "Rect",
	KindObject:   "Object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Char16 is a single UTF-16 code unit.
type Char16 uint16

// Point is a 2D coordinate.
type Point struct{ X, Y float32 }

// Size is a 2D extent.
type Size struct{ Width, Height float32 }

// Rect is an axis-aligned rectangle.
type Rect struct{ X, Y, Width, Height float32 }

// Value is an immutable tagged union over the primitive property types, an
// opaque object reference, or an array of any one of those.
//
// Strings are held as UTF-16 code units. The zero Value is Empty.
type Value struct {
	kind  Kind
	array bool
	v     any
}

// Kind returns the variant, ignoring whether the value is an array.
func (v Value) Kind() Kind { return v.kind }

// IsArray reports whether v holds an array of its Kind.
func (v Value) IsArray() bool { return v.array }

// IsEmpty reports whether v is the zero Value.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Raw returns the held Go value: a scalar (strings as []uint16) or a slice.
func (v Value) Raw() any { return v.v }

func (v Value) String() string {
	if v.array {
		return fmt.Sprintf("%s[]%v", v.kind, v.exportArray())
	}
	if v.kind == KindString {
		s, _ := v.AsString()
		return fmt.Sprintf("String(%q)", s)
	}
	return fmt.Sprintf("%s(%v)", v.kind, v.v)
}

func UInt8(x uint8) Value            { return Value{kind: KindUInt8, v: x} }
func Int16(x int16) Value            { return Value{kind: KindInt16, v: x} }
func UInt16(x uint16) Value          { return Value{kind: KindUInt16, v: x} }
func Int32(x int32) Value            { return Value{kind: KindInt32, v: x} }
func UInt32(x uint32) Value          { return Value{kind: KindUInt32, v: x} }
func Int64(x int64) Value            { return Value{kind: KindInt64, v: x} }
func UInt64(x uint64) Value          { return Value{kind: KindUInt64, v: x} }
func Single(x float32) Value         { return Value{kind: KindSingle, v: x} }
func Double(x float64) Value         { return Value{kind: KindDouble, v: x} }
func Char(x Char16) Value            { return Value{kind: KindChar16, v: x} }
func Boolean(x bool) Value           { return Value{kind: KindBoolean, v: x} }
func DateTime(x time.Time) Value     { return Value{kind: KindDateTime, v: x} }
func TimeSpan(x time.Duration) Value { return Value{kind: KindTimeSpan, v: x} }
func Guid(x uuid.UUID) Value         { return Value{kind: KindGuid, v: x} }
func PointValue(x Point) Value       { return Value{kind: KindPoint, v: x} }
func SizeValue(x Size) Value         { return Value{kind: KindSize, v: x} }
func RectValue(x Rect) Value         { return Value{kind: KindRect, v: x} }

// String returns a string Value, encoded as UTF-16.
func String(s string) Value {
	return Value{kind: KindString, v: utf16.Encode([]rune(s))}
}

// StringUTF16 returns a string Value from raw UTF-16 code units.
func StringUTF16(units []uint16) Value {
	return Value{kind: KindString, v: slices.Clone(units)}
}

// StringFromUTF16LE decodes little-endian UTF-16 bytes, honouring a leading
// byte order mark, into a string Value.
func StringFromUTF16LE(b []byte) (Value, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	if len(b) < 2 || !(b[0] == 0xFF && b[1] == 0xFE || b[0] == 0xFE && b[1] == 0xFF) {
		dec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	}
	s, _, err := transform.Bytes(dec, b)
	if err != nil {
		return Value{}, fmt.Errorf("property: decode utf-16: %w", err)
	}
	return String(string(s)), nil
}

// Object wraps an opaque reference. A nil x yields the Empty value.
func Object(x any) Value {
	if x == nil {
		return Value{}
	}
	return Value{kind: KindObject, v: x}
}

// Of converts a supported Go scalar, or a slice of one, to a Value.
// A Value passes through unchanged.
func Of(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case uint8:
		return UInt8(t), nil
	case int16:
		return Int16(t), nil
	case uint16:
		return UInt16(t), nil
	case int32:
		return Int32(t), nil
	case uint32:
		return UInt32(t), nil
	case int64:
		return Int64(t), nil
	case uint64:
		return UInt64(t), nil
	case float32:
		return Single(t), nil
	case float64:
		return Double(t), nil
	case Char16:
		return Char(t), nil
	case bool:
		return Boolean(t), nil
	case string:
		return String(t), nil
	case time.Time:
		return DateTime(t), nil
	case time.Duration:
		return TimeSpan(t), nil
	case uuid.UUID:
		return Guid(t), nil
	case Point:
		return PointValue(t), nil
	case Size:
		return SizeValue(t), nil
	case Rect:
		return RectValue(t), nil
	case []uint8:
		return array(KindUInt8, t), nil
	case []int16:
		return array(KindInt16, t), nil
	case []uint16:
		return array(KindUInt16, t), nil
	case []int32:
		return array(KindInt32, t), nil
	case []uint32:
		return array(KindUInt32, t), nil
	case []int64:
		return array(KindInt64, t), nil
	case []uint64:
		return array(KindUInt64, t), nil
	case []float32:
		return array(KindSingle, t), nil
	case []float64:
		return array(KindDouble, t), nil
	case []Char16:
		return array(KindChar16, t), nil
	case []bool:
		return array(KindBoolean, t), nil
	case []string:
		units := make([][]uint16, len(t))
		for i, s := range t {
			units[i] = utf16.Encode([]rune(s))
		}
		return Value{kind: KindString, array: true, v: units}, nil
	case []time.Time:
		return array(KindDateTime, t), nil
	case []time.Duration:
		return array(KindTimeSpan, t), nil
	case []uuid.UUID:
		return array(KindGuid, t), nil
	case []Point:
		return array(KindPoint, t), nil
	case []Size:
		return array(KindSize, t), nil
	case []Rect:
		return array(KindRect, t), nil
	case []any:
		return Value{kind: KindObject, array: true, v: slices.Clone(t)}, nil
	}
	return Value{}, fmt.Errorf("property: unsupported value type %T", x)
}

// MustOf is Of that panics on unsupported types.
func MustOf(x any) Value {
	v, err := Of(x)
	if err != nil {
		panic(err)
	}
	return v
}

func array[T any](kind Kind, xs []T) Value {
	return Value{kind: kind, array: true, v: slices.Clone(xs)}
}

// As returns the held scalar as T when the kinds match. Strings are returned
// as Go strings.
func As[T any](v Value) (T, bool) {
	if v.array {
		var zero T
		return zero, false
	}
	if v.kind == KindString {
		s, _ := v.AsString()
		out, ok := any(s).(T)
		return out, ok
	}
	out, ok := v.v.(T)
	return out, ok
}

// AsString returns the Go string held by a String value.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString || v.array {
		return "", false
	}
	return string(utf16.Decode(v.v.([]uint16))), true
}

// UTF16 returns a copy of the code units held by a String value.
func (v Value) UTF16() ([]uint16, bool) {
	if v.kind != KindString || v.array {
		return nil, false
	}
	return slices.Clone(v.v.([]uint16)), true
}

// UTF16LE encodes a String value as little-endian UTF-16 bytes without a BOM.
func (v Value) UTF16LE() ([]byte, error) {
	s, ok := v.AsString()
	if !ok {
		return nil, fmt.Errorf("property: %s is not a string", v.kind)
	}
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	b, _, err := transform.Bytes(enc, []byte(s))
	if err != nil {
		return nil, fmt.Errorf("property: encode utf-16: %w", err)
	}
	return b, nil
}

// AsArray returns the elements of an array Value as individual Values.
func (v Value) AsArray() ([]Value, bool) {
	if !v.array {
		return nil, false
	}
	if v.kind == KindString {
		units := v.v.([][]uint16)
		out := make([]Value, len(units))
		for i, u := range units {
			out[i] = Value{kind: KindString, v: u}
		}
		return out, true
	}
	rv := reflect.ValueOf(v.v)
	out := make([]Value, rv.Len())
	for i := range out {
		out[i] = Value{kind: v.kind, v: rv.Index(i).Interface()}
	}
	return out, true
}

// Equal compares two values by variant: same kind, same shape, and equal
// elements. Date-times compare as instants; objects compare with == when
// comparable and by identity otherwise.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.array != o.array {
		return false
	}
	if v.array {
		a, _ := v.AsArray()
		b, _ := o.AsArray()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	}
	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return slices.Equal(v.v.([]uint16), o.v.([]uint16))
	case KindDateTime:
		return v.v.(time.Time).Equal(o.v.(time.Time))
	case KindObject:
		return sameObject(v.v, o.v)
	}
	return v.v == o.v
}

func sameObject(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil || ta.Comparable() {
		return a == b
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ra.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return ra.Pointer() == rb.Pointer()
	}
	return false
}

func (v Value) exportArray() []any {
	elems, _ := v.AsArray()
	out := make([]any, len(elems))
	for i, e := range elems {
		if e.kind == KindString {
			out[i], _ = e.AsString()
		} else {
			out[i] = e.v
		}
	}
	return out
}
