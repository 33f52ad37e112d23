package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/native-module-host/internal/goroutineid"
	"github.com/joeycumines/native-module-host/internal/property"
)

type serialState int

const (
	serialCreated serialState = iota
	serialRunning
	serialQuitting
	serialStopped
)

// Serial is a dispatcher whose tasks run on a single goroutine.
type Serial struct {
	opts options

	mu      sync.Mutex
	queue   []func()
	state   serialState
	refuse  bool
	wake    chan struct{}
	onBind  func(goroutineid.ID)
	onExit  func(goroutineid.ID)
	started atomic.Bool

	gid    atomic.Int64
	locals Locals
	done   chan struct{}
}

// NewSerial creates a Serial dispatcher and starts its goroutine.
func NewSerial(opts ...Option) *Serial {
	s := newSerial("serial", opts)
	s.Start()
	return s
}

func newSerial(defaultName string, opts []Option) *Serial {
	return &Serial{
		opts: resolveOptions(defaultName, opts),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Name returns the dispatcher's diagnostic name.
func (s *Serial) Name() string { return s.opts.name }

// Start runs the dispatcher on a new goroutine.
func (s *Serial) Start() {
	if !s.started.CompareAndSwap(false, true) {
		panic("dispatch: serial dispatcher already started")
	}
	go s.run()
}

// Run runs the dispatcher on the calling goroutine until QuitSync is called
// and the queue drains.
func (s *Serial) Run() {
	if !s.started.CompareAndSwap(false, true) {
		panic("dispatch: serial dispatcher already started")
	}
	s.run()
}

func (s *Serial) run() {
	s.mu.Lock()
	if s.state == serialStopped {
		s.mu.Unlock()
		return
	}
	if s.state == serialCreated {
		s.state = serialRunning
	}
	s.mu.Unlock()

	id := goroutineid.Get()
	s.gid.Store(int64(id))
	bind(id, s)
	if s.onBind != nil {
		s.onBind(id)
	}

	defer s.finish(id)

	for {
		task, ok := s.next()
		if !ok {
			return
		}
		s.opts.runTask(task)
	}
}

// next blocks until a task is available, returning false once the
// dispatcher is quitting and the queue is empty.
func (s *Serial) next() (func(), bool) {
	s.mu.Lock()
	for len(s.queue) == 0 {
		if s.state >= serialQuitting {
			s.mu.Unlock()
			return nil, false
		}
		s.mu.Unlock()
		if h := s.opts.hooks.OnIdleWaitStarting; h != nil {
			h()
		}
		<-s.wake
		if h := s.opts.hooks.OnIdleWaitCompleted; h != nil {
			h()
		}
		s.mu.Lock()
	}
	task := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.mu.Unlock()
	return task, true
}

func (s *Serial) finish(id goroutineid.ID) {
	s.mu.Lock()
	s.state = serialStopped
	s.mu.Unlock()
	if err := s.locals.close(); err != nil {
		s.opts.logger.Warn("failed to close dispatcher locals", "error", err)
	}
	unbind(id)
	if s.onExit != nil {
		s.onExit(id)
	}
	s.gid.Store(0)
	close(s.done)
}

func (s *Serial) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// HasThreadAccess implements Dispatcher.
func (s *Serial) HasThreadAccess() bool {
	id := s.gid.Load()
	return id != 0 && goroutineid.Is(goroutineid.ID(id))
}

// Post implements Dispatcher.
func (s *Serial) Post(task func()) {
	s.TryPost(task)
}

// TryPost enqueues task, returning false if the dispatcher no longer accepts
// work.
func (s *Serial) TryPost(task func()) bool {
	if task == nil {
		return false
	}
	s.mu.Lock()
	if s.refuse || s.state >= serialQuitting {
		s.mu.Unlock()
		s.opts.metrics.TaskDropped(s.opts.name)
		return false
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()
	s.signal()
	return true
}

// InvokeElsePost implements Dispatcher.
func (s *Serial) InvokeElsePost(task func()) {
	if s.HasThreadAccess() {
		task()
		return
	}
	s.Post(task)
}

// Locals implements Dispatcher.
func (s *Serial) Locals() *Locals { return &s.locals }

// ShutdownNotificationName implements Dispatcher.
func (s *Serial) ShutdownNotificationName() *property.Name { return s.opts.shutdownName }

// Done implements Dispatcher.
func (s *Serial) Done() <-chan struct{} { return s.done }

// QuitSync stops accepting new work, runs the tasks already queued followed
// by the OnShutdownStarting hook, and stops the dispatcher. Unless called from
// the dispatcher's own goroutine it waits for that to complete. It is safe to
// call more than once.
func (s *Serial) QuitSync() {
	s.mu.Lock()
	if s.refuse {
		s.mu.Unlock()
		if !s.HasThreadAccess() {
			<-s.done
		}
		return
	}
	s.refuse = true
	if !s.started.Load() {
		// never ran: nothing can drain the queue
		s.queue = nil
		s.state = serialStopped
		s.mu.Unlock()
		if err := s.locals.close(); err != nil {
			s.opts.logger.Warn("failed to close dispatcher locals", "error", err)
		}
		close(s.done)
		return
	}
	if h := s.opts.hooks.OnShutdownStarting; h != nil {
		s.queue = append(s.queue, h)
	}
	s.state = serialQuitting
	s.mu.Unlock()
	s.signal()

	if s.HasThreadAccess() {
		return
	}
	<-s.done
}
