// Package host runs a script context: a goja runtime on the JS dispatcher,
// the native modules bound to it, and the shared property bag and
// notification service those modules use.
//
// A Host is created with New, bound and started with Start, fed scripts with
// LoadScript and torn down with Close. Close raises the JS dispatcher
// shutdown notification on the JS dispatcher, so module finalizers run
// before the loop stops, then raises the UI dispatcher shutdown
// notification on the UI dispatcher.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/joeycumines/native-module-host/internal/config"
	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/jsbridge"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/metrics"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/joeycumines/native-module-host/internal/notify"
	"github.com/joeycumines/native-module-host/internal/property"
)

// Namespace holds the host's own property names.
const Namespace = "NativeHost.Instance"

// InstanceIDProperty holds the host's instance id as a Guid value.
var InstanceIDProperty = property.NewID[property.Value](Namespace, "InstanceId")

var (
	// ErrStarted is returned by a second call to Start.
	ErrStarted = errors.New("host: already started")
	// ErrNotStarted is returned by LoadScript before Start.
	ErrNotStarted = errors.New("host: not started")
)

// Host is a script context with its native modules.
type Host struct {
	id        uuid.UUID
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onError   func(error)
	registrar *module.Registrar
	parent    *notify.Service
	uiQueue   *dispatch.UIQueue

	bag      *property.Bag
	notify   *notify.Service
	loop     *dispatch.Loop
	owned    []*dispatch.Serial
	state    atomic.Int32
	started  atomic.Bool
	closeErr error
	closed   sync.Once

	// JS dispatcher only.
	bridge    *jsbridge.Bridge
	instances []*module.Instance
	callable  map[string]*callable
}

var _ hostapi.Context = (*Host)(nil)

// New creates a host and its JS dispatcher. cfg may be nil. Custom serial
// dispatchers declared in cfg are created and stored in the property bag.
// Modules are not built until Start, so the caller may add properties, such
// as further dispatchers, first.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	h := &Host{
		id:       uuid.New(),
		cfg:      cfg,
		bag:      property.NewBag(),
		callable: make(map[string]*callable),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("instance", h.id.String())
	if h.registrar == nil {
		h.registrar = module.NewRegistrar()
		h.registrar.AddRegistered()
	}
	h.state.Store(int32(hostapi.StateLoading))

	schema := config.DefaultSchema()
	dispatch.ConfigureSync(dispatch.SyncConfig{
		WarnAfter: schema.Duration(cfg, config.KeySyncWarnAfter),
		Logger:    h.logger,
		Metrics:   h.metrics,
	})

	h.notify = notify.New(h.parent,
		notify.WithLogger(h.logger),
		notify.WithErrorHandler(h.ReportError),
		notify.WithMetrics(h.metrics))
	property.Set(h.bag, InstanceIDProperty, property.Guid(h.id))

	loop, err := dispatch.NewLoop(
		dispatch.WithName("js"),
		dispatch.WithLogger(h.logger),
		dispatch.WithMetrics(h.metrics),
		dispatch.WithErrorHandler(h.ReportError),
		dispatch.WithHooks(dispatch.Hooks{
			OnTaskStarting:      h.sender(dispatch.JSDispatcherTaskStartingName),
			OnIdleWaitStarting:  h.sender(dispatch.JSDispatcherIdleWaitStartingName),
			OnIdleWaitCompleted: h.sender(dispatch.JSDispatcherIdleWaitCompletedName),
			OnShutdownStarting:  h.sender(dispatch.JSDispatcherShutdownName),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	h.loop = loop
	dispatch.SetJSDispatcher(h.bag, loop)

	for _, dc := range cfg.Dispatchers {
		s := dispatch.NewSerial(
			dispatch.WithName(dc.Name),
			dispatch.WithLogger(h.logger),
			dispatch.WithMetrics(h.metrics),
			dispatch.WithErrorHandler(h.ReportError),
		)
		h.owned = append(h.owned, s)
		h.bag.Set(property.MakeName(dc.Namespace, dc.Local), dispatch.Dispatcher(s))
	}

	if h.uiQueue != nil {
		if err := dispatch.RunSync(h.uiQueue, func() { dispatch.SetUIThreadDispatcher(h.bag) }); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("host: UI queue: %w", err)
		}
	}

	return h, nil
}

// sender returns a hook raising name from the JS dispatcher.
func (h *Host) sender(name *property.Name) func() {
	return func() { h.notify.Send(name, h, nil) }
}

// ID returns the instance id.
func (h *Host) ID() uuid.UUID { return h.id }

// Config returns the configuration the host was created with.
func (h *Host) Config() *config.Config { return h.cfg }

// Registrar returns the modules the host builds on Start.
func (h *Host) Registrar() *module.Registrar { return h.registrar }

// Properties implements hostapi.Context.
func (h *Host) Properties() *property.Bag { return h.bag }

// Notifications implements hostapi.Context.
func (h *Host) Notifications() *notify.Service { return h.notify }

// UIDispatcher implements hostapi.Context.
func (h *Host) UIDispatcher() dispatch.Dispatcher { return dispatch.GetUIDispatcher(h.bag) }

// JSDispatcher implements hostapi.Context.
func (h *Host) JSDispatcher() dispatch.Dispatcher { return h.loop }

// Loop returns the JS dispatcher with its runtime accessors.
func (h *Host) Loop() *dispatch.Loop { return h.loop }

// State implements hostapi.Context.
func (h *Host) State() hostapi.State { return hostapi.State(h.state.Load()) }

// Logger implements hostapi.Context.
func (h *Host) Logger() *slog.Logger { return h.logger }

// ReportError implements hostapi.Context. Errors are logged and passed to
// the handler set with WithErrorHandler.
func (h *Host) ReportError(err error) {
	if err == nil {
		return
	}
	h.logger.Error("native host error", "error", err)
	if h.onError != nil {
		h.onError(err)
	}
}

// Start builds every module in the registrar on the JS dispatcher and
// installs them into the runtime, along with the __rnhost global and the
// default event emitter. A module that cannot be built fails Start and
// leaves the host in StateHasError.
func (h *Host) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	defer func() {
		if r := recover(); r != nil {
			h.state.Store(int32(hostapi.StateHasError))
			panic(r)
		}
	}()
	err := h.onJS(ctx, func(vm *goja.Runtime) error {
		h.bridge = jsbridge.New(vm, h.ReportError)
		h.loop.Registry().RegisterNativeModule(jsbridge.RequireName, h.bridge.Require)
		if err := h.installGlobals(vm); err != nil {
			return err
		}
		for _, name := range h.registrar.Names() {
			inst, _ := h.registrar.TryBuild(name, h, module.WithMetrics(h.metrics))
			h.instances = append(h.instances, inst)
			if err := h.bridge.Install(inst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.state.Store(int32(hostapi.StateHasError))
		return fmt.Errorf("host: start: %w", err)
	}
	h.state.Store(int32(hostapi.StateLoaded))
	h.logger.Info("host started", "modules", len(h.registrar.Names()))
	return nil
}

// Modules returns the names of the built modules. It must be called after
// Start.
func (h *Host) Modules() []string {
	var names []string
	_ = h.onJS(context.Background(), func(*goja.Runtime) error {
		for _, inst := range h.instances {
			names = append(names, inst.Info().ModuleName)
		}
		return nil
	})
	return names
}

// LoadScript runs code on the JS dispatcher. An uncaught exception is
// returned and moves the host to StateHasError.
func (h *Host) LoadScript(ctx context.Context, name, code string) error {
	_, err := h.Evaluate(ctx, name, code)
	return err
}

// Evaluate is LoadScript returning the script's completion value.
func (h *Host) Evaluate(ctx context.Context, name, code string) (jsvalue.Value, error) {
	if !h.started.Load() {
		return jsvalue.Null(), ErrNotStarted
	}
	result := jsvalue.Null()
	err := h.onJS(ctx, func(vm *goja.Runtime) error {
		v, err := vm.RunScript(name, code)
		if err != nil {
			err = fmt.Errorf("host: script %s: %w", name, err)
			h.scriptFailed(err)
			return err
		}
		result = jsbridge.FromValue(vm, v)
		return nil
	})
	return result, err
}

// CallJSFunction implements hostapi.Context. Failures are reported, not
// returned.
func (h *Host) CallJSFunction(moduleName, method string, args ...jsvalue.Value) {
	if !h.loop.RunOnVM(func(vm *goja.Runtime) {
		if err := h.callJS(vm, moduleName, method, args); err != nil {
			h.scriptFailed(err)
		}
	}) {
		h.logger.Warn("dropped script call, JS dispatcher stopped",
			"module", moduleName, "method", method)
	}
}

// EmitJSEvent implements hostapi.Context.
func (h *Host) EmitJSEvent(emitter, eventName string, args ...jsvalue.Value) {
	h.CallJSFunction(emitter, "emit", append([]jsvalue.Value{jsvalue.String(eventName)}, args...)...)
}

func (h *Host) scriptFailed(err error) {
	h.state.CompareAndSwap(int32(hostapi.StateLoaded), int32(hostapi.StateHasError))
	h.ReportError(err)
}

// Close shuts the host down. JS dispatcher shutdown subscribers, including
// module finalizers, run first, then UI dispatcher shutdown subscribers.
// Dispatchers the host created are stopped; a UI queue passed in with
// WithUIQueue is not. Close must not be called from the UI queue or a module
// dispatcher, since finalizers may need to run there.
func (h *Host) Close() error {
	h.closed.Do(func() {
		h.loop.QuitSync()

		if ui := h.UIDispatcher(); ui != nil {
			err := dispatch.RunSync(ui, func() {
				h.notify.Send(dispatch.UIDispatcherShutdownName, h, nil)
			})
			if err != nil && !errors.Is(err, dispatch.ErrStopped) {
				h.closeErr = errors.Join(h.closeErr, err)
			}
		}

		for _, s := range h.owned {
			s.QuitSync()
		}

		h.state.Store(int32(hostapi.StateUnloaded))
		h.logger.Info("host closed")
	})
	return h.closeErr
}

// onJS runs fn on the JS dispatcher and waits for it, or for ctx. A panic in
// fn is returned as an error, except a *module.InvariantError, which is
// re-raised on the calling goroutine.
func (h *Host) onJS(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var fatal *module.InvariantError
	run := func(vm *goja.Runtime) (err error) {
		defer func() {
			if r := recover(); r != nil {
				switch e := r.(type) {
				case *module.InvariantError:
					fatal = e
					err = e
				case error:
					err = e
				default:
					err = fmt.Errorf("%v", r)
				}
			}
		}()
		return fn(vm)
	}
	wait := func(err error) error {
		if fatal != nil {
			panic(fatal)
		}
		return err
	}
	if h.loop.HasThreadAccess() {
		return wait(run(h.loop.VM()))
	}

	done := make(chan error, 1)
	if !h.loop.RunOnVM(func(vm *goja.Runtime) { done <- run(vm) }) {
		return dispatch.ErrStopped
	}
	select {
	case err := <-done:
		return wait(err)
	case <-ctx.Done():
		return ctx.Err()
	case <-h.loop.Done():
		select {
		case err := <-done:
			return wait(err)
		default:
			return dispatch.ErrStopped
		}
	}
}
