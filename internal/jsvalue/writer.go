package jsvalue

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Writer receives a stream of values. Objects and arrays are written as
// Begin, members, End; object members are preceded by WritePropertyName.
type Writer interface {
	WriteNull()
	WriteBoolean(b bool)
	WriteInt64(i int64)
	WriteDouble(f float64)
	WriteString(s string)
	WriteObjectBegin()
	WritePropertyName(name string)
	WriteObjectEnd()
	WriteArrayBegin()
	WriteArrayEnd()
}

type frame struct {
	array   bool
	items   []Value
	props   map[string]Value
	pending string
	named   bool
}

// ValueWriter is a Writer that materializes what it receives as Values. Each
// complete top-level value is appended to Values, which is how callback
// arguments are collected.
//
// Structural misuse, such as a property name outside an object, panics.
type ValueWriter struct {
	stack []*frame
	out   []Value
}

// NewValueWriter returns an empty ValueWriter.
func NewValueWriter() *ValueWriter { return &ValueWriter{} }

// Values returns the completed top-level values.
func (w *ValueWriter) Values() []Value { return w.out }

// Value returns the first top-level value, or null.
func (w *ValueWriter) Value() Value {
	if len(w.out) == 0 {
		return Null()
	}
	return w.out[0]
}

// Complete reports whether every object and array has been closed.
func (w *ValueWriter) Complete() bool { return len(w.stack) == 0 }

// Reset discards everything written.
func (w *ValueWriter) Reset() {
	w.stack = nil
	w.out = nil
}

func (w *ValueWriter) emit(v Value) {
	if len(w.stack) == 0 {
		w.out = append(w.out, v)
		return
	}
	top := w.stack[len(w.stack)-1]
	if top.array {
		top.items = append(top.items, v)
		return
	}
	if !top.named {
		panic("jsvalue: object member written without a property name")
	}
	top.props[top.pending] = v
	top.named = false
}

func (w *ValueWriter) WriteNull()            { w.emit(Null()) }
func (w *ValueWriter) WriteBoolean(b bool)   { w.emit(Boolean(b)) }
func (w *ValueWriter) WriteInt64(i int64)    { w.emit(Int64(i)) }
func (w *ValueWriter) WriteDouble(f float64) { w.emit(Double(f)) }
func (w *ValueWriter) WriteString(s string)  { w.emit(String(s)) }

func (w *ValueWriter) WriteObjectBegin() {
	w.stack = append(w.stack, &frame{props: make(map[string]Value)})
}

func (w *ValueWriter) WritePropertyName(name string) {
	if len(w.stack) == 0 || w.stack[len(w.stack)-1].array {
		panic("jsvalue: property name written outside an object")
	}
	top := w.stack[len(w.stack)-1]
	top.pending = name
	top.named = true
}

func (w *ValueWriter) WriteObjectEnd() {
	top := w.pop(false)
	w.emit(Value{kind: KindObject, obj: top.props})
}

func (w *ValueWriter) WriteArrayBegin() {
	w.stack = append(w.stack, &frame{array: true})
}

func (w *ValueWriter) WriteArrayEnd() {
	top := w.pop(true)
	items := top.items
	if items == nil {
		items = []Value{}
	}
	w.emit(Value{kind: KindArray, arr: items})
}

func (w *ValueWriter) pop(array bool) *frame {
	if len(w.stack) == 0 || w.stack[len(w.stack)-1].array != array {
		panic("jsvalue: unbalanced end")
	}
	top := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	return top
}

// WriteValue writes v to w.
func WriteValue(w Writer, v Value) {
	switch v.kind {
	case KindNull:
		w.WriteNull()
	case KindBoolean:
		w.WriteBoolean(v.b)
	case KindInt64:
		w.WriteInt64(v.i)
	case KindDouble:
		w.WriteDouble(v.f)
	case KindString:
		w.WriteString(v.s)
	case KindArray:
		w.WriteArrayBegin()
		for _, item := range v.arr {
			WriteValue(w, item)
		}
		w.WriteArrayEnd()
	case KindObject:
		w.WriteObjectBegin()
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.WritePropertyName(k)
			WriteValue(w, v.obj[k])
		}
		w.WriteObjectEnd()
	}
}

// ErrUnsupported is returned by Write for Go values with no script
// representation.
var ErrUnsupported = errors.New("jsvalue: unsupported type")

// Write writes a Go value to w. Supported are nil, Value, booleans, numbers,
// strings, slices and arrays, and maps with string keys.
func Write(w Writer, v any) error {
	switch x := v.(type) {
	case nil:
		w.WriteNull()
		return nil
	case Value:
		WriteValue(w, x)
		return nil
	case bool:
		w.WriteBoolean(x)
		return nil
	case string:
		w.WriteString(x)
		return nil
	case int:
		w.WriteInt64(int64(x))
		return nil
	case int64:
		w.WriteInt64(x)
		return nil
	case float64:
		w.WriteDouble(x)
		return nil
	}
	return writeReflect(w, reflect.ValueOf(v))
}

func writeReflect(w Writer, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			w.WriteNull()
			return nil
		}
		return Write(w, rv.Elem().Interface())
	case reflect.Bool:
		w.WriteBoolean(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.WriteInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u > math.MaxInt64 {
			w.WriteDouble(float64(u))
		} else {
			w.WriteInt64(int64(u))
		}
	case reflect.Float32, reflect.Float64:
		w.WriteDouble(rv.Float())
	case reflect.String:
		w.WriteString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			w.WriteNull()
			return nil
		}
		w.WriteArrayBegin()
		for i := range rv.Len() {
			if err := Write(w, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		w.WriteArrayEnd()
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
		}
		if rv.IsNil() {
			w.WriteNull()
			return nil
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		w.WriteObjectBegin()
		for _, k := range keys {
			w.WritePropertyName(k.String())
			if err := Write(w, rv.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
		w.WriteObjectEnd()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
	}
	return nil
}

// From converts a Go value to a Value using Write.
func From(v any) (Value, error) {
	w := NewValueWriter()
	if err := Write(w, v); err != nil {
		return Null(), err
	}
	return w.Value(), nil
}
