package jsbridge

import (
	"math"
	"strconv"

	"github.com/dop251/goja"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
)

// maxDepth bounds conversion of nested script values, which may be cyclic.
const maxDepth = 64

// ToValue converts v to a script value. It must be called on the loop.
func ToValue(vm *goja.Runtime, v jsvalue.Value) goja.Value {
	switch v.Kind() {
	case jsvalue.KindBoolean:
		return vm.ToValue(v.AsBool())
	case jsvalue.KindInt64:
		return vm.ToValue(v.AsInt64())
	case jsvalue.KindDouble:
		return vm.ToValue(v.AsDouble())
	case jsvalue.KindString:
		return vm.ToValue(v.AsString())
	case jsvalue.KindArray:
		items := make([]any, 0, v.Len())
		for _, item := range v.AsArray() {
			items = append(items, ToValue(vm, item))
		}
		return vm.NewArray(items...)
	case jsvalue.KindObject:
		obj := vm.NewObject()
		for k, item := range v.AsObject() {
			_ = obj.Set(k, ToValue(vm, item))
		}
		return obj
	default:
		return goja.Null()
	}
}

// ToValues converts each value.
func ToValues(vm *goja.Runtime, values []jsvalue.Value) []goja.Value {
	out := make([]goja.Value, len(values))
	for i, v := range values {
		out[i] = ToValue(vm, v)
	}
	return out
}

// FromValue converts a script value. Functions, symbols and undefined
// become null. It must be called on the loop.
func FromValue(vm *goja.Runtime, v goja.Value) jsvalue.Value {
	return fromValue(vm, v, 0)
}

func fromValue(vm *goja.Runtime, v goja.Value, depth int) jsvalue.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) || depth > maxDepth {
		return jsvalue.Null()
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); isFn {
			return jsvalue.Null()
		}
		if obj.ClassName() == "Array" {
			n := obj.Get("length").ToInteger()
			items := make([]jsvalue.Value, 0, n)
			for i := int64(0); i < n; i++ {
				items = append(items, fromValue(vm, obj.Get(strconv.FormatInt(i, 10)), depth+1))
			}
			return jsvalue.Array(items...)
		}
		if obj.ClassName() == "Error" {
			props := map[string]jsvalue.Value{
				"message": jsvalue.String(obj.Get("message").String()),
			}
			for _, k := range obj.Keys() {
				props[k] = fromValue(vm, obj.Get(k), depth+1)
			}
			return jsvalue.Object(props)
		}
		props := make(map[string]jsvalue.Value)
		for _, k := range obj.Keys() {
			props[k] = fromValue(vm, obj.Get(k), depth+1)
		}
		return jsvalue.Object(props)
	}
	switch x := v.Export().(type) {
	case bool:
		return jsvalue.Boolean(x)
	case int64:
		return jsvalue.Int64(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 && !math.Signbit(x) {
			return jsvalue.Int64(int64(x))
		}
		return jsvalue.Double(x)
	case string:
		return jsvalue.String(x)
	default:
		return jsvalue.Null()
	}
}

// argsSource lazily converts call arguments.
type argsSource struct {
	vm   *goja.Runtime
	args []goja.Value
}

func (s argsSource) Len() int               { return len(s.args) }
func (s argsSource) At(i int) jsvalue.Value { return FromValue(s.vm, s.args[i]) }

// NewReader returns a lazy reader over call arguments.
func NewReader(vm *goja.Runtime, args []goja.Value) *jsvalue.Reader {
	return jsvalue.NewReader(argsSource{vm: vm, args: args})
}
