package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/joeycumines/native-module-host/internal/host"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/stretchr/testify/require"
)

// Errors collects errors reported by a host.
type Errors struct {
	mu   sync.Mutex
	errs []error
}

func (e *Errors) add(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// All returns a copy of the reported errors.
func (e *Errors) All() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

// StartHost creates and starts a host providing only the modules added by
// register. It is closed when the test ends.
func StartHost(t testing.TB, register func(r *module.Registrar), opts ...host.Option) (*host.Host, *Errors) {
	t.Helper()
	reg := module.NewRegistrar()
	register(reg)
	errs := &Errors{}
	opts = append([]host.Option{
		host.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		host.WithErrorHandler(errs.add),
		host.WithRegistrar(reg),
	}, opts...)
	h, err := host.New(nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	require.NoError(t, h.Start(context.Background()))
	return h, errs
}

// Eval evaluates code on h, failing the test on error.
func Eval(t testing.TB, h *host.Host, code string) jsvalue.Value {
	t.Helper()
	v, err := h.Evaluate(context.Background(), t.Name()+".js", code)
	require.NoError(t, err)
	return v
}

// WaitForGlobal waits until globalThis[name] is defined and returns it.
func WaitForGlobal(t testing.TB, h *host.Host, name string) jsvalue.Value {
	t.Helper()
	code := "globalThis[" + jsvalue.String(name).String() + "] ?? null"
	v, err := WaitForState(context.Background(), func() jsvalue.Value {
		v, err := h.Evaluate(context.Background(), "wait.js", code)
		if err != nil {
			return jsvalue.Null()
		}
		return v
	}, func(v jsvalue.Value) bool { return !v.IsNull() }, DefaultTimeout, DefaultInterval)
	require.NoError(t, err, "waiting for %s", name)
	return v
}
