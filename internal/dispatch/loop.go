package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/native-module-host/internal/goroutineid"
	"github.com/joeycumines/native-module-host/internal/property"
)

// Loop is the JavaScript dispatcher. It wraps a goja_nodejs event loop, so
// posted tasks interleave with timers and promise jobs scheduled by script,
// and all of them run on the loop goroutine that owns the goja.Runtime.
//
// goja.Runtime is not goroutine-safe. Only touch it from tasks posted with
// RunOnVM, or from code that has thread access.
type Loop struct {
	opts     options
	loop     *eventloop.EventLoop
	registry *require.Registry

	mu       sync.RWMutex
	quitting bool
	refusing bool
	stopped  bool

	gid     atomic.Int64
	pending atomic.Int64
	idle    bool // loop goroutine only

	vm     *goja.Runtime
	locals Locals
	done   chan struct{}
}

// NewLoop creates the JavaScript dispatcher and starts its event loop.
func NewLoop(opts ...Option) (*Loop, error) {
	opts = append([]Option{WithShutdownNotification(JSDispatcherShutdownName)}, opts...)
	o := resolveOptions("js", opts)
	if o.registry == nil {
		o.registry = require.NewRegistry()
	}

	l := &Loop{
		opts:     o,
		registry: o.registry,
		done:     make(chan struct{}),
		loop: eventloop.NewEventLoop(
			eventloop.WithRegistry(o.registry),
			eventloop.EnableConsole(true),
		),
	}

	l.loop.Start()

	ready := make(chan struct{})
	ok := l.loop.RunOnLoop(func(vm *goja.Runtime) {
		id := goroutineid.Get()
		l.gid.Store(int64(id))
		l.vm = vm
		bind(id, l)
		if l.pending.Load() == 0 {
			l.enterIdle()
		}
		close(ready)
	})
	if !ok {
		l.loop.Stop()
		return nil, errors.New("dispatch: failed to initialize: event loop not running")
	}
	<-ready

	return l, nil
}

// Name returns the dispatcher's diagnostic name.
func (l *Loop) Name() string { return l.opts.name }

// Registry returns the CommonJS registry used by the loop's runtime.
func (l *Loop) Registry() *require.Registry { return l.registry }

// VM returns the loop's runtime. It must only be used with thread access.
func (l *Loop) VM() *goja.Runtime {
	if !l.HasThreadAccess() {
		panic("dispatch: JS runtime accessed off the loop goroutine")
	}
	return l.vm
}

// HasThreadAccess implements Dispatcher.
func (l *Loop) HasThreadAccess() bool {
	id := l.gid.Load()
	return id != 0 && goroutineid.Is(goroutineid.ID(id))
}

// Post implements Dispatcher.
func (l *Loop) Post(task func()) {
	l.TryPost(task)
}

// TryPost schedules task on the loop, returning false if the loop no longer
// accepts work.
func (l *Loop) TryPost(task func()) bool {
	if task == nil {
		return false
	}
	return l.RunOnVM(func(*goja.Runtime) { task() })
}

// RunOnVM schedules fn on the loop with access to the runtime.
func (l *Loop) RunOnVM(fn func(vm *goja.Runtime)) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.refusing {
		l.opts.metrics.TaskDropped(l.opts.name)
		return false
	}
	l.pending.Add(1)
	ok := l.loop.RunOnLoop(func(vm *goja.Runtime) {
		if l.idle {
			l.idle = false
			if h := l.opts.hooks.OnIdleWaitCompleted; h != nil {
				h()
			}
		}
		l.opts.runTask(func() { fn(vm) })
		if l.pending.Add(-1) == 0 {
			l.enterIdle()
		}
	})
	if !ok {
		l.pending.Add(-1)
		l.opts.metrics.TaskDropped(l.opts.name)
	}
	return ok
}

func (l *Loop) enterIdle() {
	l.idle = true
	if h := l.opts.hooks.OnIdleWaitStarting; h != nil {
		h()
	}
}

// InvokeElsePost implements Dispatcher.
func (l *Loop) InvokeElsePost(task func()) {
	if l.HasThreadAccess() {
		task()
		return
	}
	l.Post(task)
}

// Locals implements Dispatcher.
func (l *Loop) Locals() *Locals { return &l.locals }

// ShutdownNotificationName implements Dispatcher.
func (l *Loop) ShutdownNotificationName() *property.Name { return l.opts.shutdownName }

// Done implements Dispatcher.
func (l *Loop) Done() <-chan struct{} { return l.done }

// QuitSync calls the OnShutdownStarting hook on the loop, lets the tasks
// posted so far (including any posted by the hook) run, then stops accepting
// new work and stops the event loop. Called from the loop itself it cannot
// wait, so the loop stops once those tasks have drained.
func (l *Loop) QuitSync() {
	l.mu.Lock()
	if l.quitting {
		l.mu.Unlock()
		if !l.HasThreadAccess() {
			<-l.done
		}
		return
	}
	l.quitting = true
	l.mu.Unlock()

	if l.HasThreadAccess() {
		if h := l.opts.hooks.OnShutdownStarting; h != nil {
			h()
		}
		l.drain(func() {
			l.loop.StopNoWait()
			l.finish()
		})
		return
	}

	if h := l.opts.hooks.OnShutdownStarting; h != nil {
		l.TryPost(h)
	}
	drained := make(chan struct{})
	if l.loop.RunOnLoop(func(*goja.Runtime) { l.drain(func() { close(drained) }) }) {
		<-drained
	}
	l.loop.Stop()
	l.finish()
}

// drain calls then once no posted task is outstanding, refusing new work from
// that point. It re-queues itself behind outstanding tasks.
func (l *Loop) drain(then func()) {
	l.mu.Lock()
	if l.pending.Load() == 0 {
		l.refusing = true
		l.mu.Unlock()
		then()
		return
	}
	l.mu.Unlock()
	if !l.loop.RunOnLoop(func(*goja.Runtime) { l.drain(then) }) {
		then()
	}
}

func (l *Loop) finish() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.refusing = true
	l.mu.Unlock()

	if err := l.locals.close(); err != nil {
		l.opts.logger.Warn("failed to close dispatcher locals", "error", err)
	}
	if id := goroutineid.ID(l.gid.Load()); id != 0 {
		unbind(id)
	}
	close(l.done)
}
