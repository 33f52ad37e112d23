package module

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	rejected bool
	args     []jsvalue.Value
}

func collect() (Results, <-chan outcome) {
	ch := make(chan outcome, 4)
	return Results{
		Resolve: func(args []jsvalue.Value) { ch <- outcome{args: args} },
		Reject:  func(args []jsvalue.Value) { ch <- outcome{rejected: true, args: args} },
	}, ch
}

func next(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
		return outcome{}
	}
}

// drain waits for every result posted to the JS dispatcher so far.
func drain(t *testing.T, ctx *testContext) {
	t.Helper()
	require.NoError(t, dispatch.RunSync(ctx.js, func() {}))
	require.NoError(t, dispatch.RunSync(ctx.js, func() {}))
}

func TestInvoke_ResultDeliveredAtMostOnce(t *testing.T) {
	ctx := newTestContext(t)
	inst := Build(Info{ModuleName: "Twice"}, func(b *Builder) any {
		b.AddMethod("both", ReturnTwoCallbacks, func(_ *jsvalue.Reader, out jsvalue.Writer, resolve, reject ResultCallback) {
			out.WriteString("ok")
			resolve(out)
			resolve(out)
			reject(out)
		}, true)
		return nil
	}, ctx)

	res, ch := collect()
	require.NoError(t, inst.Invoke("both", nil, res))

	o := next(t, ch)
	assert.False(t, o.rejected)
	require.Len(t, o.args, 1)
	assert.Equal(t, "ok", o.args[0].AsString())

	drain(t, ctx)
	assert.Empty(t, ch)

	errs := ctx.reported()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrConcluded)
	}
}

func TestInvoke_CallbackShapes(t *testing.T) {
	ctx := newTestContext(t)
	type seen struct{ resolve, reject bool }
	shapes := make(chan seen, 4)
	inst := Build(Info{ModuleName: "Shapes"}, func(b *Builder) any {
		for _, kind := range []ReturnKind{ReturnVoid, ReturnCallback, ReturnTwoCallbacks, ReturnPromise} {
			b.AddMethod(kind.String(), kind, func(_ *jsvalue.Reader, _ jsvalue.Writer, resolve, reject ResultCallback) {
				shapes <- seen{resolve: resolve != nil, reject: reject != nil}
			}, true)
		}
		return nil
	}, ctx)

	want := map[ReturnKind]seen{
		ReturnVoid:         {},
		ReturnCallback:     {resolve: true},
		ReturnTwoCallbacks: {resolve: true, reject: true},
		ReturnPromise:      {resolve: true, reject: true},
	}
	for kind, w := range want {
		require.NoError(t, inst.Invoke(kind.String(), nil, Results{}))
		select {
		case got := <-shapes:
			assert.Equal(t, w, got, kind.String())
		case <-time.After(5 * time.Second):
			t.Fatal("method did not run")
		}
	}
}

func TestInvoke_PanicRejectsPromise(t *testing.T) {
	ctx := newTestContext(t)
	custom := dispatch.NewSerial()
	t.Cleanup(custom.QuitSync)
	name := property.MakeName("Test", "PanicDispatcher")
	ctx.bag.Set(name, dispatch.Dispatcher(custom))

	inst := Build(Info{ModuleName: "Panicky", DispatcherName: name}, func(b *Builder) any {
		b.AddMethod("explode", ReturnPromise, func(*jsvalue.Reader, jsvalue.Writer, ResultCallback, ResultCallback) {
			panic(errors.New("kaboom"))
		}, false)
		b.AddMethod("explodeCallback", ReturnCallback, func(*jsvalue.Reader, jsvalue.Writer, ResultCallback, ResultCallback) {
			panic("quiet")
		}, false)
		return nil
	}, ctx)

	res, ch := collect()
	require.NoError(t, inst.Invoke("explode", nil, res))
	o := next(t, ch)
	assert.True(t, o.rejected)
	require.Len(t, o.args, 1)
	assert.Contains(t, o.args[0].Get("message").AsString(), "kaboom")

	require.NoError(t, inst.Invoke("explodeCallback", nil, res))
	require.NoError(t, dispatch.RunSync(custom, func() {}))
	drain(t, ctx)
	assert.Empty(t, ch)

	errs := ctx.reported()
	require.Len(t, errs, 2)
	var pe *MethodPanicError
	require.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, "explode", pe.Member)
	require.ErrorAs(t, errs[1], &pe)
	assert.Equal(t, "explodeCallback", pe.Member)
}

func TestInvoke_StoppedDispatcherRejects(t *testing.T) {
	ctx := newTestContext(t)
	custom := dispatch.NewSerial()
	name := property.MakeName("Test", "StoppedDispatcher")
	ctx.bag.Set(name, dispatch.Dispatcher(custom))

	inst := Build(Info{ModuleName: "Stopped", DispatcherName: name}, func(b *Builder) any {
		b.AddPromiseMethod("m", func(*jsvalue.Reader) (any, error) { return 1, nil }, false)
		return nil
	}, ctx)
	custom.QuitSync()

	res, ch := collect()
	require.NoError(t, inst.Invoke("m", jsvalue.ReaderOf(), res))
	o := next(t, ch)
	assert.True(t, o.rejected)
	assert.Contains(t, o.args[0].Get("message").AsString(), "stopped")
}

func TestInvokeSync_Errors(t *testing.T) {
	ctx := newTestContext(t)
	inst := Build(Info{ModuleName: "SyncErrors"}, func(b *Builder) any {
		b.AddSyncFunc("fails", func(*jsvalue.Reader) (any, error) { return nil, errors.New("bad input") }, true)
		b.AddSyncMethod("panics", func(*jsvalue.Reader, jsvalue.Writer) { panic("oops") }, true)
		b.AddSyncFunc("sum", func(args *jsvalue.Reader) (any, error) {
			var total int64
			for v, ok := args.Next(); ok; v, ok = args.Next() {
				total += v.AsInt64()
			}
			return total, nil
		}, true)
		return nil
	}, ctx)

	var (
		sum                jsvalue.Value
		sumErr, fErr, pErr error
	)
	require.NoError(t, dispatch.RunSync(ctx.js, func() {
		sum, sumErr = inst.InvokeSync("sum", jsvalue.ReaderOf(jsvalue.Int64(1), jsvalue.Int64(2), jsvalue.Double(3)))
		_, fErr = inst.InvokeSync("fails", nil)
		_, pErr = inst.InvokeSync("panics", nil)
	}))

	require.NoError(t, sumErr)
	assert.Equal(t, int64(6), sum.AsInt64())
	assert.EqualError(t, fErr, "bad input")
	var pe *MethodPanicError
	assert.ErrorAs(t, pErr, &pe)

	// only the panic is a reported failure
	assert.Len(t, ctx.reported(), 1)
}

func TestAddPromiseMethod(t *testing.T) {
	ctx := newTestContext(t)
	inst := Build(Info{ModuleName: "Promises"}, func(b *Builder) any {
		b.AddPromiseMethod("double", func(args *jsvalue.Reader) (any, error) {
			v, _ := args.Next()
			return v.AsInt64() * 2, nil
		}, true)
		b.AddPromiseMethod("fail", func(*jsvalue.Reader) (any, error) {
			return nil, errors.New("nope")
		}, true)
		b.AddPromiseMethod("bad", func(*jsvalue.Reader) (any, error) {
			return []any{1, make(chan int)}, nil
		}, true)
		return nil
	}, ctx)

	res, ch := collect()
	require.NoError(t, inst.Invoke("double", jsvalue.ReaderOf(jsvalue.Int64(21)), res))
	o := next(t, ch)
	assert.False(t, o.rejected)
	assert.Equal(t, int64(42), o.args[0].AsInt64())

	require.NoError(t, inst.Invoke("fail", nil, res))
	o = next(t, ch)
	assert.True(t, o.rejected)
	assert.Equal(t, "nope", o.args[0].Get("message").AsString())

	require.NoError(t, inst.Invoke("bad", nil, res))
	o = next(t, ch)
	assert.True(t, o.rejected)
	require.Len(t, o.args, 1)
	assert.Contains(t, o.args[0].Get("message").AsString(), "unsupported type")
	assert.Empty(t, ctx.reported())
}
