package module

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/metrics"
	"github.com/joeycumines/native-module-host/internal/notify"
)

// Instance is a module bound to a context.
type Instance struct {
	info    Info
	object  any
	builder *Builder
	ctx     hostapi.Context
	logger  *slog.Logger
	metrics *metrics.Metrics

	js     dispatch.Dispatcher
	module dispatch.Dispatcher // nil when everything runs on js

	shutdown     *notify.Subscription
	finalizeOnce sync.Once
	finalized    chan struct{}
}

// BuildOption configures Build.
type BuildOption func(*Instance)

// WithMetrics records method calls and failures.
func WithMetrics(m *metrics.Metrics) BuildOption {
	return func(inst *Instance) { inst.metrics = m }
}

// Build binds a module to ctx:
//
//  1. The JS dispatcher is read from the context's properties; it must exist.
//  2. A module dispatcher is read from the properties when the module names
//     one other than the JS dispatcher; it must exist.
//  3. provider declares the members and returns the module object.
//  4. JS-preferring initializers run synchronously on the JS dispatcher,
//     Field kind first, then Method kind.
//  5. The remaining initializers are posted, as one task, to the module
//     dispatcher.
//  6. Finalizers are subscribed to the JS dispatcher shutdown notification.
//
// Without a module dispatcher every member runs on the JS dispatcher.
func Build(info Info, provider Provider, ctx hostapi.Context, opts ...BuildOption) *Instance {
	info = info.normalize()

	js := dispatch.GetJSDispatcher(ctx.Properties())
	if js == nil {
		crash("%s: no JS dispatcher in the context properties", info.ModuleName)
	}

	var module dispatch.Dispatcher
	if !info.UsesJSDispatcher() {
		v := ctx.Properties().Get(info.DispatcherName)
		d, ok := v.(dispatch.Dispatcher)
		if !ok || d == nil {
			crash("%s: dispatcher %s is not in the context properties", info.ModuleName, info.DispatcherName)
		}
		module = d
	}

	inst := &Instance{
		info:      info,
		ctx:       ctx,
		logger:    ctx.Logger().With("module", info.ModuleName),
		js:        js,
		module:    module,
		finalized: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(inst)
	}

	b := NewBuilder(info)
	inst.object = provider(b)
	inst.builder = b

	inst.runInitializers()
	inst.subscribeFinalizers()

	return inst
}

func (inst *Instance) onJS(preferJS bool) bool {
	return preferJS || inst.module == nil
}

func (inst *Instance) targetFor(preferJS bool) dispatch.Dispatcher {
	if inst.onJS(preferJS) {
		return inst.js
	}
	return inst.module
}

func (inst *Instance) runInitializers() {
	var jsInits, moduleInits []initializer
	for _, kind := range []InitializerKind{InitializerField, InitializerMethod} {
		for _, init := range inst.builder.initializers {
			if init.kind != kind {
				continue
			}
			if inst.onJS(init.preferJS) {
				jsInits = append(jsInits, init)
			} else {
				moduleInits = append(moduleInits, init)
			}
		}
	}

	if len(jsInits) != 0 {
		_ = inst.runOn(inst.js, "initializer", func() {
			for _, init := range jsInits {
				init.fn(inst.ctx)
			}
		})
	}

	if len(moduleInits) != 0 {
		inst.module.Post(func() {
			_ = inst.runGuarded("initializer", func() {
				for _, init := range moduleInits {
					init.fn(inst.ctx)
				}
			})
		})
	}
}

func (inst *Instance) subscribeFinalizers() {
	if len(inst.builder.finalizers) == 0 {
		return
	}
	inst.shutdown = inst.ctx.Notifications().Subscribe(nil, dispatch.JSDispatcherShutdownName, func(_ any, args notify.Args) {
		args.Subscription.Unsubscribe()
		inst.finalize()
	})
}

// finalize runs module dispatcher finalizers synchronously, then JS
// finalizers inline. It expects to be called on the JS dispatcher.
func (inst *Instance) finalize() {
	inst.finalizeOnce.Do(func() {
		defer close(inst.finalized)

		var jsFins, moduleFins []finalizer
		for _, fin := range inst.builder.finalizers {
			if inst.onJS(fin.preferJS) {
				jsFins = append(jsFins, fin)
			} else {
				moduleFins = append(moduleFins, fin)
			}
		}

		if len(moduleFins) != 0 {
			if err := inst.runOn(inst.module, "finalizer", func() {
				for _, fin := range moduleFins {
					fin.fn()
				}
			}); err != nil {
				inst.logger.Warn("module dispatcher finalizers did not complete", "error", err)
			}
		}

		if len(jsFins) != 0 {
			_ = inst.runOn(inst.js, "finalizer", func() {
				for _, fin := range jsFins {
					fin.fn()
				}
			})
		}
	})
}

// Info returns the module description.
func (inst *Instance) Info() Info { return inst.info }

// Object returns the value returned by the module's Provider.
func (inst *Instance) Object() any { return inst.object }

// Dispatcher returns the dispatcher non-JS-preferring members run on.
func (inst *Instance) Dispatcher() dispatch.Dispatcher {
	if inst.module != nil {
		return inst.module
	}
	return inst.js
}

// Finalized is closed after the module's finalizers ran.
func (inst *Instance) Finalized() <-chan struct{} { return inst.finalized }

// HasConstants reports whether the module declared constant providers.
func (inst *Instance) HasConstants() bool { return len(inst.builder.constants) != 0 }

// MethodNames returns the async method names in declaration order.
func (inst *Instance) MethodNames() []string {
	var out []string
	for _, name := range inst.builder.memberOrder {
		if _, ok := inst.builder.methods[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// SyncMethodNames returns the sync method names in declaration order.
func (inst *Instance) SyncMethodNames() []string {
	var out []string
	for _, name := range inst.builder.memberOrder {
		if _, ok := inst.builder.syncMethods[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// ReturnKind returns the return kind of an async method.
func (inst *Instance) ReturnKind(name string) (ReturnKind, bool) {
	m, ok := inst.builder.methods[name]
	if !ok {
		return 0, false
	}
	return m.kind, true
}

// Constants gathers the constant providers into one object, in declaration
// order; a later write to the same key wins. It must be called on the JS
// dispatcher. A provider that panics is reported and contributes nothing.
func (inst *Instance) Constants() jsvalue.Value {
	if !inst.js.HasThreadAccess() {
		crash("%s: constants requested off the JS dispatcher", inst.info.ModuleName)
	}
	out := make(map[string]jsvalue.Value)
	for _, cp := range inst.builder.constants {
		w := jsvalue.NewValueWriter()
		w.WriteObjectBegin()
		err := inst.runOn(inst.targetFor(cp.preferJS), getConstantsName, func() { cp.fn(w) })
		if err != nil {
			continue
		}
		w.WriteObjectEnd()
		if !w.Complete() {
			inst.ctx.ReportError(fmt.Errorf("%s: constant provider left unclosed objects or arrays", inst.info.ModuleName))
			continue
		}
		maps.Copy(out, w.Value().AsObject())
	}
	return jsvalue.Object(out)
}

// Invoke calls an async method. The method runs on its dispatcher; results
// are delivered to res on the JS dispatcher.
func (inst *Instance) Invoke(name string, args *jsvalue.Reader, res Results) error {
	m, ok := inst.builder.methods[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownMethod, inst.info.ModuleName, name)
	}
	if args == nil {
		args = jsvalue.ReaderOf()
	}
	inst.metrics.MethodCalled(inst.info.ModuleName, name, m.kind.String())
	dispatchCall(inst.targetFor(m.preferJS), &call{inst: inst, method: m, results: res}, args)
	return nil
}

// InvokeSync calls a sync method and returns the first value it wrote. When
// the method runs on another dispatcher the caller blocks until it returns.
func (inst *Instance) InvokeSync(name string, args *jsvalue.Reader) (jsvalue.Value, error) {
	m, ok := inst.builder.syncMethods[name]
	if !ok {
		return jsvalue.Null(), fmt.Errorf("%w: %s.%s", ErrUnknownMethod, inst.info.ModuleName, name)
	}
	if args == nil {
		args = jsvalue.ReaderOf()
	}
	inst.metrics.MethodCalled(inst.info.ModuleName, name, "Sync")

	target := inst.targetFor(m.preferJS)
	if !target.HasThreadAccess() {
		args.Materialize()
	}
	out := jsvalue.NewValueWriter()
	if err := inst.runOn(target, name, func() { m.fn(args, out) }); err != nil {
		return jsvalue.Null(), err
	}
	return out.Value(), nil
}
