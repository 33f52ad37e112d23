package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/native-module-host/internal/builtin/samples"
	"github.com/joeycumines/native-module-host/internal/config"
	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/jsbridge"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/joeycumines/native-module-host/internal/notify"
	"github.com/joeycumines/native-module-host/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDriver = `
class TestDriver {
  testDefaultDispatchedModule() {
    const { DefaultDispatchedModule } = NativeModules;
    const myConst = DefaultDispatchedModule.myConst;
    DefaultDispatchedModule.testAsyncMethod(myConst);
    DefaultDispatchedModule.testSyncMethod(myConst);
  }

  testUIDispatchedModule() {
    const { UIDispatchedModule } = NativeModules;
    const myConst = UIDispatchedModule.myConst;
    UIDispatchedModule.testAsyncMethod(myConst);
    UIDispatchedModule.testSyncMethod(myConst);
  }

  testJSDispatchedModule() {
    const { JSDispatchedModule } = NativeModules;
    const myConst = JSDispatchedModule.myConst;
    JSDispatchedModule.testAsyncMethod(myConst);
    JSDispatchedModule.testSyncMethod(myConst);
  }

  testCustomDispatchedModule() {
    const { CustomDispatchedModule } = NativeModules;
    const myConst = CustomDispatchedModule.myConst;
    CustomDispatchedModule.testAsyncMethod(myConst);
    CustomDispatchedModule.testSyncMethod(myConst);
  }

  testUIDispatchedModule3() {
    const { UIDispatchedModule3 } = NativeModules;
    UIDispatchedModule3.testJSAsyncMethod(UIDispatchedModule3.myJSConst);
    UIDispatchedModule3.testUIAsyncMethod(UIDispatchedModule3.myUIConst);
    UIDispatchedModule3.testJSSyncMethod(UIDispatchedModule3.myJSConst);
    UIDispatchedModule3.testUISyncMethod(UIDispatchedModule3.myUIConst);
  }

  testCustomDispatchedModule3() {
    const { CustomDispatchedModule3 } = NativeModules;
    CustomDispatchedModule3.testJSAsyncMethod(CustomDispatchedModule3.myJSConst);
    CustomDispatchedModule3.testCustomAsyncMethod(CustomDispatchedModule3.myCustomConst);
    CustomDispatchedModule3.testJSSyncMethod(CustomDispatchedModule3.myJSConst);
    CustomDispatchedModule3.testCustomSyncMethod(CustomDispatchedModule3.myCustomConst);
  }
}

__rnhost.registerLazyCallableModule('TestDriver', () => new TestDriver());
`

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) add(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.errs)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newHost creates an unstarted host with reg, closed on cleanup.
func newHost(t *testing.T, cfg *config.Config, reg *module.Registrar, opts ...Option) (*Host, *errorLog) {
	t.Helper()
	errs := &errorLog{}
	opts = append([]Option{WithLogger(discard()), WithErrorHandler(errs.add), WithRegistrar(reg)}, opts...)
	h, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, errs
}

// newSampleHost starts a host with the sample modules, a UI queue, the
// custom dispatcher from config and the test driver script.
func newSampleHost(t *testing.T) (*Host, *samples.EventLog) {
	t.Helper()
	ui := dispatch.NewUIQueue(dispatch.WithLogger(discard()))
	ui.Start()
	t.Cleanup(ui.QuitSync)

	cfg, err := config.LoadFromReader(strings.NewReader("[dispatchers]\ncustom " + samples.Namespace + "/CustomDispatcher\n"))
	require.NoError(t, err)

	reg := module.NewRegistrar()
	samples.Register(reg)
	h, _ := newHost(t, cfg, reg, WithUIQueue(ui))

	log := samples.NewEventLog()
	property.Set(h.Properties(), samples.EventLogProperty, log)

	ctx := context.Background()
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.LoadScript(ctx, "driver.js", testDriver))
	return h, log
}

// global reads a script global as a jsvalue.
func global(t *testing.T, h *Host, name string) jsvalue.Value {
	t.Helper()
	var v jsvalue.Value
	require.NoError(t, h.onJS(context.Background(), func(vm *goja.Runtime) error {
		g := vm.Get(name)
		if g == nil || goja.IsUndefined(g) {
			v = jsvalue.Null()
			return nil
		}
		v = jsbridge.FromValue(vm, g)
		return nil
	}))
	return v
}

func TestHost_DispatchedModules(t *testing.T) {
	for _, tc := range []struct {
		module   string
		events   []string
		finalize []string
	}{
		{
			module:   "DefaultDispatchedModule",
			events:   []string{"Initialize", "GetConstants", "TestSyncMethod", "TestAsyncMethod"},
			finalize: []string{"Finalize"},
		},
		{
			module:   "UIDispatchedModule",
			events:   []string{"Initialize", "GetConstants", "TestSyncMethod", "TestAsyncMethod"},
			finalize: []string{"Finalize"},
		},
		{
			module:   "JSDispatchedModule",
			events:   []string{"Initialize", "GetConstants", "TestSyncMethod", "TestAsyncMethod"},
			finalize: []string{"Finalize"},
		},
		{
			module:   "CustomDispatchedModule",
			events:   []string{"Initialize", "GetConstants", "TestSyncMethod", "TestAsyncMethod"},
			finalize: []string{"Finalize"},
		},
		{
			module: "UIDispatchedModule3",
			events: []string{
				"JSInitialize", "UIInitialize", "GetJSConstants", "GetUIConstants",
				"TestJSSyncMethod", "TestUISyncMethod", "TestJSAsyncMethod", "TestUIAsyncMethod",
			},
			finalize: []string{"UIFinalize", "JSFinalize"},
		},
		{
			module: "CustomDispatchedModule3",
			events: []string{
				"JSInitialize", "CustomInitialize", "GetJSConstants", "GetCustomConstants",
				"TestJSSyncMethod", "TestCustomSyncMethod", "TestJSAsyncMethod", "TestCustomAsyncMethod",
			},
			finalize: []string{"CustomFinalize", "JSFinalize"},
		},
	} {
		t.Run(tc.module, func(t *testing.T) {
			h, log := newSampleHost(t)
			qualify := func(names []string) []string {
				out := make([]string, len(names))
				for i, n := range names {
					out[i] = tc.module + "::" + n
				}
				return out
			}

			h.CallJSFunction("TestDriver", "test"+tc.module)
			require.Eventually(t, func() bool { return log.Has(qualify(tc.events)...) }, 5*time.Second, 5*time.Millisecond)

			require.NoError(t, h.Close())
			events := log.Events()
			finalize := qualify(tc.finalize)
			for _, e := range finalize {
				assert.Contains(t, events, e)
			}
			if len(finalize) == 2 {
				assert.Less(t, slices.Index(events, finalize[0]), slices.Index(events, finalize[1]),
					"module dispatcher finalizers run before JS ones")
			}
			if strings.HasSuffix(tc.module, "3") {
				assert.Less(t, slices.Index(events, tc.module+"::JSInitialize"), slices.Index(events, qualify(tc.events[1:2])[0]),
					"JS initializers run first")
			}
			assert.Empty(t, log.Failures())
		})
	}
}

func TestHost_State(t *testing.T) {
	h, errs := newHost(t, nil, module.NewRegistrar())
	assert.Equal(t, hostapi.StateLoading, h.State())

	assert.ErrorIs(t, h.LoadScript(context.Background(), "early.js", "1"), ErrNotStarted)

	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, hostapi.StateLoaded, h.State())
	assert.ErrorIs(t, h.Start(context.Background()), ErrStarted)

	err := h.LoadScript(context.Background(), "boom.js", "throw new Error('boom')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, hostapi.StateHasError, h.State())
	assert.Len(t, errs.all(), 1)

	require.NoError(t, h.Close())
	assert.Equal(t, hostapi.StateUnloaded, h.State())
	assert.NoError(t, h.Close())
}

func TestHost_StartFailsOnMissingDispatcher(t *testing.T) {
	reg := module.NewRegistrar()
	reg.Add("NeedsCustom", func(*module.Builder) any { return nil }, samples.CustomDispatcherName)
	h, _ := newHost(t, nil, reg)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_ = h.Start(context.Background())
	}()
	err, ok := recovered.(error)
	require.True(t, ok, "Start should panic with an error, got %v", recovered)
	var invariant *module.InvariantError
	assert.ErrorAs(t, err, &invariant)
	assert.Contains(t, err.Error(), "NeedsCustom: dispatcher")
	assert.Equal(t, hostapi.StateHasError, h.State())

	// the loop is still usable after the panic
	assert.NoError(t, h.onJS(context.Background(), func(*goja.Runtime) error { return nil }))
	assert.NotPanics(t, func() { _ = h.Modules() })
}

func TestHost_StartCancelled(t *testing.T) {
	h, _ := newHost(t, nil, module.NewRegistrar())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.Start(ctx), context.Canceled)
}

func TestHost_CallJSFunction(t *testing.T) {
	h, errs := newHost(t, nil, module.NewRegistrar())
	ctx := context.Background()
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.LoadScript(ctx, "receiver.js", `
var built = 0;
__rnhost.registerCallableModule('Receiver', {
  record: function (a, b) { result = { a: a, b: b, self: this === __rnhost.getCallableModule('Receiver') }; }
});
__rnhost.registerLazyCallableModule('Lazy', function () { built++; return { ping: function () { pings = (typeof pings === 'number' ? pings : 0) + 1; } }; });
`))

	h.CallJSFunction("Receiver", "record", jsvalue.Int64(7), jsvalue.Object(map[string]jsvalue.Value{"k": jsvalue.String("v")}))
	h.CallJSFunction("Lazy", "ping")
	h.CallJSFunction("Lazy", "ping")

	require.Eventually(t, func() bool { return global(t, h, "pings").AsInt64() == 2 }, 5*time.Second, 5*time.Millisecond)
	result := global(t, h, "result")
	assert.Equal(t, int64(7), result.Get("a").AsInt64())
	assert.Equal(t, "v", result.Get("b").Get("k").AsString())
	assert.True(t, result.Get("self").AsBool())
	assert.Equal(t, int64(1), global(t, h, "built").AsInt64())
	assert.Empty(t, errs.all())
	assert.Equal(t, hostapi.StateLoaded, h.State())

	h.CallJSFunction("Missing", "nope")
	require.Eventually(t, func() bool { return len(errs.all()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, errs.all()[0].Error(), `"Missing" is not registered`)
	assert.Equal(t, hostapi.StateHasError, h.State())
}

func TestHost_EmitJSEvent(t *testing.T) {
	h, errs := newHost(t, nil, module.NewRegistrar())
	ctx := context.Background()
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.LoadScript(ctx, "listener.js", `
const emitter = __rnhost.getCallableModule('RCTDeviceEventEmitter');
var seen = [];
const sub = emitter.addListener('tick', function (n, label) { seen.push(label + n); });
emitter.addListener('stop', function () { sub.remove(); });
`))

	h.EmitJSEvent(module.DefaultEventEmitterName, "tick", jsvalue.Int64(1), jsvalue.String("t"))
	h.EmitJSEvent(module.DefaultEventEmitterName, "stop")
	h.EmitJSEvent(module.DefaultEventEmitterName, "tick", jsvalue.Int64(2), jsvalue.String("t"))
	h.EmitJSEvent(module.DefaultEventEmitterName, "unheard")

	require.Eventually(t, func() bool {
		var n int64
		_ = h.onJS(ctx, func(vm *goja.Runtime) error {
			n = vm.Get("seen").ToObject(vm).Get("length").ToInteger()
			return nil
		})
		return n >= 1
	}, 5*time.Second, 5*time.Millisecond)
	// run a round trip so every emit above has been delivered
	require.NoError(t, h.LoadScript(ctx, "flush.js", "0"))
	seen := global(t, h, "seen")
	require.Equal(t, 1, seen.Len())
	assert.Equal(t, "t1", seen.AsArray()[0].AsString())
	assert.Empty(t, errs.all())
}

func TestHost_NativeModulesRequire(t *testing.T) {
	reg := module.NewRegistrar()
	reg.Add("Greeter", func(b *module.Builder) any {
		b.AddConstant("greeting", "hello", true)
		b.AddSyncFunc("greet", func(args *jsvalue.Reader) (any, error) {
			v, _ := args.Next()
			return "hello " + v.AsString(), nil
		}, true)
		return nil
	}, nil)
	h, _ := newHost(t, nil, reg)
	ctx := context.Background()
	require.NoError(t, h.Start(ctx))
	assert.Equal(t, []string{"Greeter"}, h.Modules())

	require.NoError(t, h.LoadScript(ctx, "require.js", `
const mods = require('rnhost:NativeModules');
var same = mods === NativeModules;
var greeting = mods.Greeter.greet(mods.Greeter.greeting);
`))
	assert.True(t, global(t, h, "same").AsBool())
	assert.Equal(t, "hello hello", global(t, h, "greeting").AsString())
}

func TestHost_InstanceID(t *testing.T) {
	h, _ := newHost(t, nil, module.NewRegistrar())
	v, ok := property.Get(h.Properties(), InstanceIDProperty)
	require.True(t, ok)
	assert.Equal(t, property.KindGuid, v.Kind())
	assert.True(t, v.Equal(property.Guid(h.ID())))

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.LoadScript(context.Background(), "id.js", "var id = __rnhost.instanceId"))
	assert.Equal(t, h.ID().String(), global(t, h, "id").AsString())
}

func TestHost_ConfigDispatchers(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("[dispatchers]\nworker Test.Dispatchers/Worker\n"))
	require.NoError(t, err)
	h, _ := newHost(t, cfg, module.NewRegistrar())

	d, ok := h.Properties().Get(property.MakeName("Test.Dispatchers", "Worker")).(dispatch.Dispatcher)
	require.True(t, ok)
	var ran atomic.Bool
	require.NoError(t, dispatch.RunSync(d, func() { ran.Store(d.HasThreadAccess()) }))
	assert.True(t, ran.Load())

	require.NoError(t, h.Close())
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("config dispatcher not stopped by Close")
	}
}

func TestHost_ShutdownNotifications(t *testing.T) {
	ui := dispatch.NewUIQueue(dispatch.WithLogger(discard()))
	ui.Start()
	t.Cleanup(ui.QuitSync)
	h, _ := newHost(t, nil, module.NewRegistrar(), WithUIQueue(ui))
	require.NotNil(t, h.UIDispatcher())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(what string, d dispatch.Dispatcher) notify.Handler {
		return func(sender any, _ notify.Args) {
			mu.Lock()
			defer mu.Unlock()
			if sender == h && d.HasThreadAccess() {
				order = append(order, what)
			}
		}
	}
	h.Notifications().Subscribe(nil, dispatch.JSDispatcherShutdownName, record("js", h.JSDispatcher()))
	h.Notifications().Subscribe(nil, dispatch.UIDispatcherShutdownName, record("ui", h.UIDispatcher()))

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"js", "ui"}, order)
}

func TestHost_JSShutdownReachesLoopSubscribers(t *testing.T) {
	h, _ := newHost(t, nil, module.NewRegistrar())

	var onLoop, inline atomic.Int32
	var loopAccess atomic.Bool
	h.Notifications().Subscribe(h.JSDispatcher(), dispatch.JSDispatcherShutdownName, func(any, notify.Args) {
		onLoop.Add(1)
		loopAccess.Store(h.JSDispatcher().HasThreadAccess())
	})
	h.Notifications().Subscribe(nil, dispatch.JSDispatcherShutdownName, func(any, notify.Args) { inline.Add(1) })

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.Equal(t, int32(1), onLoop.Load())
	assert.True(t, loopAccess.Load())
	assert.Equal(t, int32(1), inline.Load())
}

func TestHost_DiagnosticNotifications(t *testing.T) {
	h, _ := newHost(t, nil, module.NewRegistrar())
	var starting, idle atomic.Int64
	h.Notifications().Subscribe(nil, dispatch.JSDispatcherTaskStartingName, func(any, notify.Args) { starting.Add(1) })
	h.Notifications().Subscribe(nil, dispatch.JSDispatcherIdleWaitStartingName, func(any, notify.Args) { idle.Add(1) })

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.LoadScript(context.Background(), "noop.js", "0"))
	assert.Eventually(t, func() bool { return starting.Load() >= 2 && idle.Load() >= 1 }, 5*time.Second, 5*time.Millisecond)
}

func TestHost_ParentNotifications(t *testing.T) {
	parent := notify.New(nil)
	var got atomic.Bool
	parent.Subscribe(nil, dispatch.JSDispatcherShutdownName, func(any, notify.Args) { got.Store(true) })

	h, _ := newHost(t, nil, module.NewRegistrar(), WithParentNotifications(parent))
	require.NoError(t, h.Close())
	assert.True(t, got.Load())
}

func TestHost_CallAfterClose(t *testing.T) {
	h, errs := newHost(t, nil, module.NewRegistrar())
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Close())

	h.CallJSFunction("Anything", "at all")
	assert.True(t, errors.Is(h.LoadScript(context.Background(), "late.js", "0"), dispatch.ErrStopped))
	assert.Empty(t, errs.all())
}
