package host

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/joeycumines/native-module-host/internal/jsbridge"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/joeycumines/native-module-host/internal/property"
)

// GlobalName is the script global exposing host services.
const GlobalName = "__rnhost"

// defaultEmitter is registered as the callable module EmitJSEvent targets
// unless a script replaces it.
const defaultEmitter = `(function (host, name) {
  var listeners = Object.create(null);
  host.registerCallableModule(name, {
    addListener: function (event, fn) {
      (listeners[event] = listeners[event] || []).push(fn);
      return {
        remove: function () {
          var l = listeners[event] || [];
          var i = l.indexOf(fn);
          if (i >= 0) l.splice(i, 1);
        }
      };
    },
    removeAllListeners: function (event) {
      if (event === undefined) listeners = Object.create(null);
      else delete listeners[event];
    },
    listenerCount: function (event) {
      return (listeners[event] || []).length;
    },
    emit: function (event) {
      var args = Array.prototype.slice.call(arguments, 1);
      (listeners[event] || []).slice().forEach(function (fn) {
        fn.apply(null, args);
      });
    }
  });
})`

// installGlobals defines __rnhost:
//
//	__rnhost.instanceId                          the host instance id
//	__rnhost.registerCallableModule(name, obj)   target of CallJSFunction
//	__rnhost.registerLazyCallableModule(name, factory)
//	__rnhost.getCallableModule(name)             obj, or undefined
func (h *Host) installGlobals(vm *goja.Runtime) error {
	obj := vm.NewObject()
	if v, ok := property.Get(h.bag, InstanceIDProperty); ok {
		if id, ok := property.As[uuid.UUID](v); ok {
			_ = obj.Set("instanceId", id.String())
		}
	}
	_ = obj.Set("registerCallableModule", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		target := call.Argument(1)
		if goja.IsUndefined(target) || goja.IsNull(target) {
			panic(vm.NewTypeError("registerCallableModule(%q): module object required", name))
		}
		h.callable[name] = &callable{value: target}
		return goja.Undefined()
	})
	_ = obj.Set("registerLazyCallableModule", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		factory, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("registerLazyCallableModule(%q): factory function required", name))
		}
		h.callable[name] = &callable{factory: factory}
		return goja.Undefined()
	})
	_ = obj.Set("getCallableModule", func(call goja.FunctionCall) goja.Value {
		v, err := h.callableModule(call.Argument(0).String())
		if err != nil {
			return goja.Undefined()
		}
		return v
	})
	if err := vm.Set(GlobalName, obj); err != nil {
		return fmt.Errorf("host: %s: %w", GlobalName, err)
	}

	fn, err := vm.RunString(defaultEmitter)
	if err != nil {
		return fmt.Errorf("host: default event emitter: %w", err)
	}
	install, _ := goja.AssertFunction(fn)
	if _, err := install(goja.Undefined(), obj, vm.ToValue(module.DefaultEventEmitterName)); err != nil {
		return fmt.Errorf("host: default event emitter: %w", err)
	}
	return nil
}

// callable is a module registered by script, or the factory that makes it
// on first use.
type callable struct {
	value   goja.Value
	factory goja.Callable
}

// callableModule returns the module registered under name, running a lazy
// factory once.
func (h *Host) callableModule(name string) (goja.Value, error) {
	c, ok := h.callable[name]
	if !ok {
		return nil, fmt.Errorf("host: callable module %q is not registered", name)
	}
	if c.factory != nil {
		v, err := c.factory(goja.Undefined())
		if err != nil {
			return nil, fmt.Errorf("host: callable module %q factory: %w", name, err)
		}
		c.value, c.factory = v, nil
	}
	return c.value, nil
}

func (h *Host) callJS(vm *goja.Runtime, moduleName, method string, args []jsvalue.Value) error {
	mod, err := h.callableModule(moduleName)
	if err != nil {
		return err
	}
	obj := mod.ToObject(vm)
	fn, ok := goja.AssertFunction(obj.Get(method))
	if !ok {
		return fmt.Errorf("host: %s.%s is not a function", moduleName, method)
	}
	if _, err := fn(obj, jsbridge.ToValues(vm, args)...); err != nil {
		return fmt.Errorf("host: %s.%s: %w", moduleName, method, err)
	}
	return nil
}
