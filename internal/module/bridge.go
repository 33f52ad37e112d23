package module

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
)

var (
	// ErrUnknownMethod is returned when invoking a member the module does
	// not declare.
	ErrUnknownMethod = errors.New("module: unknown method")
	// ErrConcluded is reported when resolve or reject is called after the
	// call already concluded.
	ErrConcluded = errors.New("module: result already delivered")
)

// MethodPanicError wraps a value recovered from a panicking module delegate.
type MethodPanicError struct {
	Module string
	Member string
	Value  any
	Stack  []byte
}

func (e *MethodPanicError) Error() string {
	return fmt.Sprintf("module: exception in %s.%s: %v", e.Module, e.Member, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *MethodPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Results receives the conclusion of an async call on the JS dispatcher.
// Either function may be nil.
type Results struct {
	Resolve func(args []jsvalue.Value)
	Reject  func(args []jsvalue.Value)
}

// call is a single async invocation. resolve and reject share one guard so
// that together they conclude the call at most once.
type call struct {
	inst      *Instance
	method    *method
	results   Results
	concluded atomic.Bool
}

func (c *call) conclude(rejected bool, out jsvalue.Writer) {
	if !c.concluded.CompareAndSwap(false, true) {
		c.inst.metrics.ResultDropped(c.inst.info.ModuleName, c.method.name)
		c.inst.logger.Warn("dropping duplicate method result",
			slog.String("module", c.inst.info.ModuleName),
			slog.String("method", c.method.name),
			slog.Bool("reject", rejected))
		c.inst.ctx.ReportError(fmt.Errorf("%s.%s: %w", c.inst.info.ModuleName, c.method.name, ErrConcluded))
		return
	}
	var args []jsvalue.Value
	if vw, ok := out.(*jsvalue.ValueWriter); ok && vw != nil {
		if !vw.Complete() {
			c.inst.logger.Warn("method result has unclosed objects or arrays",
				slog.String("module", c.inst.info.ModuleName),
				slog.String("method", c.method.name))
		}
		args = append(args, vw.Values()...)
	}
	deliver := c.results.Resolve
	if rejected {
		deliver = c.results.Reject
	}
	if deliver == nil {
		return
	}
	c.inst.js.Post(func() { deliver(args) })
}

func (c *call) resolve() ResultCallback {
	if c.method.kind == ReturnVoid {
		return nil
	}
	return func(out jsvalue.Writer) { c.conclude(false, out) }
}

func (c *call) reject() ResultCallback {
	if c.method.kind == ReturnVoid || c.method.kind == ReturnCallback {
		return nil
	}
	return func(out jsvalue.Writer) { c.conclude(true, out) }
}

// run invokes the delegate on the current goroutine, converting a panic into
// a report and, for two-callback kinds, a rejection.
func (c *call) run(args *jsvalue.Reader) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(r)
		}
	}()
	c.method.fn(args, jsvalue.NewValueWriter(), c.resolve(), c.reject())
}

func (c *call) fail(r any) {
	err := &MethodPanicError{
		Module: c.inst.info.ModuleName,
		Member: c.method.name,
		Value:  r,
		Stack:  debug.Stack(),
	}
	c.inst.metrics.MethodFailed(c.inst.info.ModuleName, c.method.name)
	c.inst.ctx.ReportError(err)
	c.rejectWith(err)
}

func (c *call) rejectWith(err error) {
	if c.method.kind != ReturnTwoCallbacks && c.method.kind != ReturnPromise {
		return
	}
	if c.concluded.Load() {
		return
	}
	w := jsvalue.NewValueWriter()
	WriteError(w, err)
	c.conclude(true, w)
}

// dispatchCall runs c on target, inline when the caller already has access.
func dispatchCall(target dispatch.Dispatcher, c *call, args *jsvalue.Reader) {
	if target.HasThreadAccess() {
		c.run(args)
		return
	}
	args.Materialize()
	if !dispatch.TryPost(target, func() { c.run(args) }) {
		c.rejectWith(fmt.Errorf("%s.%s: %w", c.inst.info.ModuleName, c.method.name, dispatch.ErrStopped))
	}
}

// runGuarded runs fn, reporting a panic as a failure of member. It returns
// the recovered error, if any.
func (inst *Instance) runGuarded(member string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(scriptError); ok {
				err = se.err
				return
			}
			pe := &MethodPanicError{
				Module: inst.info.ModuleName,
				Member: member,
				Value:  r,
				Stack:  debug.Stack(),
			}
			inst.metrics.MethodFailed(inst.info.ModuleName, member)
			inst.ctx.ReportError(pe)
			err = pe
		}
	}()
	fn()
	return nil
}

// runOn runs fn on target and waits, guarding it with runGuarded.
func (inst *Instance) runOn(target dispatch.Dispatcher, member string, fn func()) error {
	var err error
	if syncErr := dispatch.RunSync(target, func() {
		err = inst.runGuarded(member, fn)
	}); syncErr != nil {
		return fmt.Errorf("%s.%s: %w", inst.info.ModuleName, member, syncErr)
	}
	return err
}
