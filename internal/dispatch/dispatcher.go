// Package dispatch provides serial task dispatchers with thread affinity.
//
// A Dispatcher runs posted tasks one at a time, in posting order, on a single
// goroutine. Code that must only run "on" a dispatcher checks
// HasThreadAccess, and code elsewhere hands work over with Post or, when it
// must wait for the result, with RunSync.
//
// Three implementations are provided:
//   - Serial: a dispatcher backed by its own goroutine
//   - UIQueue: a Serial driven by an application-owned goroutine via Run
//   - Loop: the JavaScript dispatcher, backed by a goja_nodejs event loop
package dispatch

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/native-module-host/internal/goroutineid"
	"github.com/joeycumines/native-module-host/internal/metrics"
	"github.com/joeycumines/native-module-host/internal/property"
)

// ErrStopped is returned when work cannot be handed to a dispatcher because
// it has been shut down.
var ErrStopped = errors.New("dispatch: dispatcher stopped")

// Dispatcher is a serial task queue bound to one goroutine.
type Dispatcher interface {
	// HasThreadAccess reports whether the calling goroutine is the one the
	// dispatcher runs its tasks on.
	HasThreadAccess() bool

	// Post enqueues task. Tasks run in posting order, never concurrently.
	// Posting to a dispatcher that has shut down drops the task.
	Post(task func())

	// InvokeElsePost runs task inline when the caller has thread access, and
	// otherwise posts it.
	InvokeElsePost(task func())

	// Locals returns the dispatcher's local value store.
	Locals() *Locals

	// ShutdownNotificationName returns the notification sent when this
	// dispatcher is about to shut down, or nil if there is none.
	ShutdownNotificationName() *property.Name

	// Done is closed once the dispatcher has stopped and will run no more
	// tasks.
	Done() <-chan struct{}
}

// tryPoster is implemented by dispatchers that can report whether a task was
// accepted.
type tryPoster interface {
	TryPost(task func()) bool
}

// named is implemented by dispatchers that carry a diagnostic name.
type named interface {
	Name() string
}

// TryPost posts task to d, reporting whether d accepted it.
func TryPost(d Dispatcher, task func()) bool {
	if tp, ok := d.(tryPoster); ok {
		return tp.TryPost(task)
	}
	select {
	case <-d.Done():
		return false
	default:
	}
	d.Post(task)
	return true
}

func nameOf(d Dispatcher) string {
	if n, ok := d.(named); ok {
		return n.Name()
	}
	return "dispatcher"
}

// bound maps goroutine IDs to the dispatcher currently running on them.
var bound sync.Map // goroutineid.ID -> Dispatcher

func bind(id goroutineid.ID, d Dispatcher) {
	bound.Store(id, d)
}

func unbind(id goroutineid.ID) {
	bound.Delete(id)
}

// Current returns the dispatcher the calling goroutine belongs to, or nil.
func Current() Dispatcher {
	if v, ok := bound.Load(goroutineid.Get()); ok {
		return v.(Dispatcher)
	}
	return nil
}

// Hooks are diagnostic callbacks invoked on the dispatcher's goroutine.
type Hooks struct {
	// OnTaskStarting runs before each task.
	OnTaskStarting func()
	// OnIdleWaitStarting runs when the queue drains and the dispatcher
	// starts waiting for work.
	OnIdleWaitStarting func()
	// OnIdleWaitCompleted runs when new work arrives after an idle wait.
	OnIdleWaitCompleted func()
	// OnShutdownStarting runs once, after the dispatcher stops accepting
	// work and before it stops.
	OnShutdownStarting func()
}

// Option configures a dispatcher.
type Option func(*options)

type options struct {
	name         string
	logger       *slog.Logger
	metrics      *metrics.Metrics
	errorHandler func(err error)
	shutdownName *property.Name
	hooks        Hooks
	registry     *require.Registry
}

func resolveOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("dispatcher", o.name)
	return o
}

// WithName sets the diagnostic name used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics enables task instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithErrorHandler receives a *TaskPanicError for every task that panics.
// Without a handler the panic is logged.
func WithErrorHandler(fn func(err error)) Option {
	return func(o *options) { o.errorHandler = fn }
}

// WithShutdownNotification sets the name reported by
// ShutdownNotificationName.
func WithShutdownNotification(name *property.Name) Option {
	return func(o *options) { o.shutdownName = name }
}

// WithHooks installs diagnostic callbacks.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithRegistry shares a CommonJS registry with a Loop's runtime. Other
// dispatchers ignore it.
func WithRegistry(registry *require.Registry) Option {
	return func(o *options) { o.registry = registry }
}

func (o *options) report(err error) {
	if o.errorHandler != nil {
		o.errorHandler(err)
		return
	}
	o.logger.Error("dispatcher task failed", "error", err)
}

// runTask executes task with panic recovery. It is called on the
// dispatcher's goroutine.
func (o *options) runTask(task func()) {
	if o.hooks.OnTaskStarting != nil {
		o.hooks.OnTaskStarting()
	}
	o.metrics.TaskRun(o.name)
	defer func() {
		if r := recover(); r != nil {
			o.metrics.TaskPanicked(o.name)
			o.report(newTaskPanicError(o.name, r))
		}
	}()
	task()
}
