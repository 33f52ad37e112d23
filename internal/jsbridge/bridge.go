// Package jsbridge exposes module instances to the goja runtime.
//
// Each instance becomes an object on the NativeModules global (also available
// as require("rnhost:NativeModules")). Async methods take their callbacks as
// trailing arguments, Promise methods return a promise, sync methods return
// their value directly and getConstants returns the constants object. The
// constants are also copied onto the module object.
//
// Every function here must run on the loop that owns the runtime.
package jsbridge

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
)

// GlobalName is the global object holding the installed modules.
const GlobalName = "NativeModules"

// RequireName is the CommonJS name the same object is available under.
const RequireName = "rnhost:NativeModules"

// Bridge installs module instances into one runtime.
type Bridge struct {
	vm          *goja.Runtime
	modules     *goja.Object
	reportError func(error)
}

// New creates the NativeModules object on vm. reportError receives failures
// raised by script callbacks; it may be nil.
func New(vm *goja.Runtime, reportError func(error)) *Bridge {
	b := &Bridge{vm: vm, modules: vm.NewObject(), reportError: reportError}
	_ = vm.Set(GlobalName, b.modules)
	return b
}

// Modules returns the NativeModules object.
func (b *Bridge) Modules() *goja.Object { return b.modules }

// Require is a goja_nodejs module loader exporting the NativeModules object.
func (b *Bridge) Require(_ *goja.Runtime, mod *goja.Object) {
	_ = mod.Set("exports", b.modules)
}

// Install adds inst under its module name.
func (b *Bridge) Install(inst *module.Instance) error {
	name := inst.Info().ModuleName
	obj := b.vm.NewObject()

	if inst.HasConstants() {
		constants := inst.Constants()
		for k, v := range constants.AsObject() {
			if err := obj.Set(k, ToValue(b.vm, v)); err != nil {
				return fmt.Errorf("jsbridge: %s constant %q: %w", name, k, err)
			}
		}
		if err := obj.Set("getConstants", func(goja.FunctionCall) goja.Value {
			return ToValue(b.vm, inst.Constants())
		}); err != nil {
			return fmt.Errorf("jsbridge: %s.getConstants: %w", name, err)
		}
	}

	for _, method := range inst.MethodNames() {
		kind, _ := inst.ReturnKind(method)
		if err := obj.Set(method, b.asyncMethod(inst, method, kind)); err != nil {
			return fmt.Errorf("jsbridge: %s.%s: %w", name, method, err)
		}
	}

	for _, method := range inst.SyncMethodNames() {
		if err := obj.Set(method, b.syncMethod(inst, method)); err != nil {
			return fmt.Errorf("jsbridge: %s.%s: %w", name, method, err)
		}
	}

	return b.modules.Set(name, obj)
}

func (b *Bridge) asyncMethod(inst *module.Instance, method string, kind module.ReturnKind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := call.Arguments
		var res module.Results
		var promise goja.Value

		switch kind {
		case module.ReturnCallback:
			if len(args) < 1 {
				panic(b.vm.NewTypeError("%s.%s expects a callback", inst.Info().ModuleName, method))
			}
			res.Resolve = b.callback(args[len(args)-1])
			args = args[:len(args)-1]
		case module.ReturnTwoCallbacks:
			if len(args) < 2 {
				panic(b.vm.NewTypeError("%s.%s expects resolve and reject callbacks", inst.Info().ModuleName, method))
			}
			res.Resolve = b.callback(args[len(args)-2])
			res.Reject = b.callback(args[len(args)-1])
			args = args[:len(args)-2]
		case module.ReturnPromise:
			p, resolve, reject := b.vm.NewPromise()
			promise = b.vm.ToValue(p)
			res.Resolve = func(values []jsvalue.Value) {
				if len(values) == 0 {
					resolve(goja.Undefined())
					return
				}
				resolve(ToValue(b.vm, values[0]))
			}
			res.Reject = func(values []jsvalue.Value) {
				reject(b.newError(values))
			}
		}

		if err := inst.Invoke(method, NewReader(b.vm, args), res); err != nil {
			panic(b.vm.NewGoError(err))
		}
		if promise != nil {
			return promise
		}
		return goja.Undefined()
	}
}

func (b *Bridge) syncMethod(inst *module.Instance, method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		v, err := inst.InvokeSync(method, NewReader(b.vm, call.Arguments))
		if err != nil {
			panic(b.vm.NewGoError(err))
		}
		return ToValue(b.vm, v)
	}
}

// callback wraps a script function as a result delivery. A value that is not
// a function is ignored.
func (b *Bridge) callback(fn goja.Value) func([]jsvalue.Value) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil
	}
	return func(values []jsvalue.Value) {
		if _, err := callable(goja.Undefined(), ToValues(b.vm, values)...); err != nil {
			b.report(fmt.Errorf("jsbridge: callback failed: %w", err))
		}
	}
}

// newError builds the rejection reason: an Error whose message and other
// properties come from the first value.
func (b *Bridge) newError(values []jsvalue.Value) goja.Value {
	msg := "native module call failed"
	var props map[string]jsvalue.Value
	if len(values) != 0 {
		switch v := values[0]; v.Kind() {
		case jsvalue.KindObject:
			props = v.AsObject()
			if m := v.Get("message"); m.Kind() == jsvalue.KindString {
				msg = m.AsString()
			}
		case jsvalue.KindString:
			msg = v.AsString()
		}
	}
	obj, err := b.vm.New(b.vm.Get("Error"), b.vm.ToValue(msg))
	if err != nil {
		return b.vm.NewGoError(errors.New(msg))
	}
	for k, v := range props {
		if k != "message" {
			_ = obj.Set(k, ToValue(b.vm, v))
		}
	}
	return obj
}

func (b *Bridge) report(err error) {
	if b.reportError != nil {
		b.reportError(err)
	}
}
