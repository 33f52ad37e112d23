package jsbridge

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/joeycumines/native-module-host/internal/notify"
	"github.com/joeycumines/native-module-host/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopContext struct {
	bag  *property.Bag
	svc  *notify.Service
	loop *dispatch.Loop
	errs chan error
}

func (c *loopContext) Properties() *property.Bag                       { return c.bag }
func (c *loopContext) Notifications() *notify.Service                  { return c.svc }
func (c *loopContext) UIDispatcher() dispatch.Dispatcher               { return nil }
func (c *loopContext) JSDispatcher() dispatch.Dispatcher               { return c.loop }
func (c *loopContext) CallJSFunction(string, string, ...jsvalue.Value) {}
func (c *loopContext) EmitJSEvent(string, string, ...jsvalue.Value)    {}
func (c *loopContext) State() hostapi.State                            { return hostapi.StateLoaded }
func (c *loopContext) ReportError(err error)                           { c.errs <- err }
func (c *loopContext) Logger() *slog.Logger                            { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newLoopContext(t *testing.T) *loopContext {
	t.Helper()
	loop, err := dispatch.NewLoop()
	require.NoError(t, err)
	t.Cleanup(loop.QuitSync)
	ctx := &loopContext{bag: property.NewBag(), svc: notify.New(nil), loop: loop, errs: make(chan error, 16)}
	dispatch.SetJSDispatcher(ctx.bag, loop)
	return ctx
}

var marked atomic.Bool

func sampleModule(b *module.Builder) any {
	b.AddPromiseMethod("mark", func(*jsvalue.Reader) (any, error) {
		marked.Store(true)
		return nil, nil
	}, true)
	b.AddSyncFunc("marked", func(*jsvalue.Reader) (any, error) { return marked.Load(), nil }, true)
	b.AddConstant("version", "1.2.3", true)
	b.AddConstant("answer", 42, true)
	b.AddSyncFunc("add", func(args *jsvalue.Reader) (any, error) {
		x, _ := args.Next()
		y, _ := args.Next()
		return x.AsDouble() + y.AsDouble(), nil
	}, true)
	b.AddSyncFunc("fail", func(*jsvalue.Reader) (any, error) { return nil, errors.New("sync failure") }, true)
	b.AddSyncFunc("echo", func(args *jsvalue.Reader) (any, error) {
		v, _ := args.Next()
		return v, nil
	}, true)
	b.AddPromiseMethod("double", func(args *jsvalue.Reader) (any, error) {
		v, _ := args.Next()
		return v.AsInt64() * 2, nil
	}, true)
	b.AddPromiseMethod("reject", func(*jsvalue.Reader) (any, error) {
		return nil, errors.New("async failure")
	}, true)
	b.AddMethod("withCallback", module.ReturnCallback, func(args *jsvalue.Reader, out jsvalue.Writer, resolve, _ module.ResultCallback) {
		v, _ := args.Next()
		out.WriteString("hello " + v.AsString())
		resolve(out)
	}, true)
	b.AddMethod("split", module.ReturnTwoCallbacks, func(args *jsvalue.Reader, out jsvalue.Writer, resolve, reject module.ResultCallback) {
		v, _ := args.Next()
		if v.AsBool() {
			out.WriteInt64(1)
			resolve(out)
			return
		}
		module.WriteError(out, errors.New("negative"))
		reject(out)
	}, true)
	return nil
}

// run evaluates script on the loop after installing Sample, then polls the
// global "result" until it is set.
func run(t *testing.T, script string) jsvalue.Value {
	t.Helper()
	ctx := newLoopContext(t)

	var setupErr error
	require.NoError(t, dispatch.RunSync(ctx.loop, func() {
		vm := ctx.loop.VM()
		b := New(vm, ctx.ReportError)
		ctx.loop.Registry().RegisterNativeModule(RequireName, b.Require)
		inst := module.Build(module.Info{ModuleName: "Sample"}, sampleModule, ctx)
		if setupErr = b.Install(inst); setupErr != nil {
			return
		}
		_, setupErr = vm.RunString(script)
	}))
	require.NoError(t, setupErr)

	var result jsvalue.Value
	require.Eventually(t, func() bool {
		var done bool
		_ = dispatch.RunSync(ctx.loop, func() {
			v := ctx.loop.VM().Get("result")
			if v != nil && !goja.IsUndefined(v) {
				result = FromValue(ctx.loop.VM(), v)
				done = true
			}
		})
		return done
	}, 5*time.Second, 5*time.Millisecond)
	return result
}

func TestBridge_Constants(t *testing.T) {
	v := run(t, `
		const c = NativeModules.Sample.getConstants();
		var result = {
			version: c.version,
			answer: NativeModules.Sample.answer,
			same: require("rnhost:NativeModules") === NativeModules,
		};
	`)
	assert.Equal(t, "1.2.3", v.Get("version").AsString())
	assert.Equal(t, int64(42), v.Get("answer").AsInt64())
	assert.True(t, v.Get("same").AsBool())
}

func TestBridge_SyncMethods(t *testing.T) {
	v := run(t, `
		let caught;
		try { NativeModules.Sample.fail(); } catch (e) { caught = String(e.message || e); }
		var result = {
			sum: NativeModules.Sample.add(40, 2),
			echo: NativeModules.Sample.echo({a: [1, "two", null], b: 2.5}),
			caught,
		};
	`)
	assert.Equal(t, int64(42), v.Get("sum").AsInt64())
	assert.True(t, jsvalue.Object(map[string]jsvalue.Value{
		"a": jsvalue.Array(jsvalue.Int64(1), jsvalue.String("two"), jsvalue.Null()),
		"b": jsvalue.Double(2.5),
	}).Equal(v.Get("echo")), "echo: %v", v.Get("echo"))
	assert.Contains(t, v.Get("caught").AsString(), "sync failure")
}

func TestBridge_Promises(t *testing.T) {
	v := run(t, `
		Promise.all([
			NativeModules.Sample.double(21),
			NativeModules.Sample.reject().then(() => "unexpected", e => e instanceof Error ? e.message : "not an Error"),
		]).then(([doubled, rejected]) => { globalThis.result = {doubled, rejected}; });
	`)
	assert.Equal(t, int64(42), v.Get("doubled").AsInt64())
	assert.Equal(t, "async failure", v.Get("rejected").AsString())
}

func TestBridge_AsyncOnJSDispatcherRunsInline(t *testing.T) {
	marked.Store(false)
	v := run(t, `
		const p = NativeModules.Sample.mark();
		const ranInline = NativeModules.Sample.marked();
		p.then(() => { globalThis.result = {ranInline}; });
	`)
	assert.True(t, v.Get("ranInline").AsBool())
}

func TestBridge_Callbacks(t *testing.T) {
	v := run(t, `
		const out = {};
		NativeModules.Sample.withCallback("world", msg => { out.greeting = msg; });
		NativeModules.Sample.split(true, n => { out.ok = n; }, () => { out.ok = "wrong"; });
		NativeModules.Sample.split(false, () => { out.err = "wrong"; }, e => {
			out.err = e.message;
			globalThis.result = out;
		});
	`)
	assert.Equal(t, "hello world", v.Get("greeting").AsString())
	assert.Equal(t, int64(1), v.Get("ok").AsInt64())
	assert.Equal(t, "negative", v.Get("err").AsString())
}

func TestBridge_MissingCallbackThrows(t *testing.T) {
	v := run(t, `
		let msg;
		try { NativeModules.Sample.split(true); } catch (e) { msg = e.message; }
		var result = msg;
	`)
	assert.Contains(t, v.AsString(), "expects resolve and reject callbacks")
}

func TestFromValue(t *testing.T) {
	vm := goja.New()
	v, err := vm.RunString(`({n: 1, f: 1.5, s: "x", b: true, u: undefined, fn() {}, arr: [1, [2]]})`)
	require.NoError(t, err)

	got := FromValue(vm, v)
	assert.Equal(t, int64(1), got.Get("n").AsInt64())
	assert.Equal(t, jsvalue.KindDouble, got.Get("f").Kind())
	assert.Equal(t, "x", got.Get("s").AsString())
	assert.True(t, got.Get("b").AsBool())
	assert.True(t, got.Get("u").IsNull())
	assert.True(t, got.Get("fn").IsNull())
	assert.Equal(t, []any{int64(1), []any{int64(2)}}, got.Get("arr").Interface())

	cyclic, err := vm.RunString(`const o = {}; o.self = o; o`)
	require.NoError(t, err)
	assert.NotPanics(t, func() { FromValue(vm, cyclic) })
}

func TestFromValue_NegativeZero(t *testing.T) {
	vm := goja.New()
	v, err := vm.RunString(`-0`)
	require.NoError(t, err)

	got := FromValue(vm, v)
	require.Equal(t, jsvalue.KindDouble, got.Kind())
	assert.True(t, math.Signbit(got.AsDouble()))

	_ = vm.Set("z", ToValue(vm, got))
	same, err := vm.RunString(`Object.is(z, -0)`)
	require.NoError(t, err)
	assert.True(t, same.ToBoolean())
}

func TestToValue(t *testing.T) {
	vm := goja.New()
	in := jsvalue.Object(map[string]jsvalue.Value{
		"list": jsvalue.Array(jsvalue.Int64(1), jsvalue.Boolean(false)),
		"name": jsvalue.String("n"),
		"none": jsvalue.Null(),
	})
	_ = vm.Set("v", ToValue(vm, in))
	out, err := vm.RunString(`JSON.stringify(v, Object.keys(v).sort())`)
	require.NoError(t, err)
	assert.Equal(t, `{"list":[1,false],"name":"n","none":null}`, out.String())
}
