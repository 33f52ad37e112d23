// Package notify implements a named, dispatcher-aware publish/subscribe
// service.
//
// Subscriptions for a name are kept as an immutable snapshot that is replaced,
// never mutated, when a subscription is added or removed. Send reads the
// current snapshot under the lock and invokes handlers outside it, so a
// handler may subscribe, unsubscribe or send without deadlocking.
package notify

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/metrics"
	"github.com/joeycumines/native-module-host/internal/property"
)

// Handler receives a notification.
type Handler func(sender any, args Args)

// Args carries the notification payload and the receiving subscription.
type Args struct {
	Data         any
	Subscription *Subscription
}

// Service is a notification service. The zero value is not usable; call New.
type Service struct {
	parent *Service
	self   *Proxy

	logger       *slog.Logger
	metrics      *metrics.Metrics
	errorHandler func(error)

	mu   sync.Mutex
	subs map[*property.Name]*snapshot
}

// snapshot is an immutable ordered list of subscriptions. Pointer identity
// is used to detect concurrent modification.
type snapshot struct {
	subs []*Subscription
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used to report handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithErrorHandler receives a *HandlerPanicError for each handler that
// panics. Without one, failures are logged.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Service) { s.errorHandler = fn }
}

// WithMetrics enables notification instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service. If parent is non-nil every notification sent to the
// new service is forwarded to parent after local delivery.
func New(parent *Service, opts ...Option) *Service {
	s := &Service{
		parent: parent,
		subs:   make(map[*property.Name]*snapshot),
	}
	s.self = NewProxy(s)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Parent returns the service notifications are forwarded to, or nil.
func (s *Service) Parent() *Service { return s.parent }

// Subscribe registers handler for name. If d is nil the handler runs on the
// sending goroutine; otherwise it is always posted to d, even when the sender
// is already on d.
func (s *Service) Subscribe(d dispatch.Dispatcher, name *property.Name, handler Handler) *Subscription {
	if name == nil {
		panic("notify: nil notification name")
	}
	if handler == nil {
		panic("notify: nil handler")
	}
	sub := &Subscription{
		service:    s.self,
		name:       name,
		dispatcher: d,
		handler:    handler,
	}
	sub.subscribed.Store(true)
	s.modify(name, func(cur []*Subscription) []*Subscription {
		next := make([]*Subscription, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, sub)
	})
	return sub
}

// Send delivers a notification to every current subscriber of name, then
// forwards it to the parent service.
func (s *Service) Send(name *property.Name, sender, data any) {
	if name == nil {
		panic("notify: nil notification name")
	}
	s.mu.Lock()
	snap := s.subs[name]
	s.mu.Unlock()

	s.metrics.NotificationSent(name.String())

	if snap != nil {
		for _, sub := range snap.subs {
			s.deliver(sub, sender, data)
		}
	}

	if s.parent != nil {
		s.parent.Send(name, sender, data)
	}
}

// Subscribers returns the number of live subscriptions for name.
func (s *Service) Subscribers(name *property.Name) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap := s.subs[name]; snap != nil {
		return len(snap.subs)
	}
	return 0
}

func (s *Service) deliver(sub *Subscription, sender, data any) {
	if !sub.IsSubscribed() {
		return
	}
	if sub.dispatcher == nil {
		s.invoke(sub, sender, data)
		return
	}
	sub.dispatcher.Post(func() {
		if sub.IsSubscribed() {
			s.invoke(sub, sender, data)
		}
	})
}

func (s *Service) invoke(sub *Subscription, sender, data any) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.HandlerPanicked(sub.name.String())
			err := &HandlerPanicError{Name: sub.name, Value: r, Stack: debug.Stack()}
			if s.errorHandler != nil {
				s.errorHandler(err)
				return
			}
			s.logger.Error("notification handler failed", "name", sub.name.String(), "error", err)
		}
	}()
	sub.handler(sender, Args{Data: data, Subscription: sub})
}

// modify replaces the snapshot for name with fn(current). fn runs outside
// the lock and may be retried if another modification won the race.
func (s *Service) modify(name *property.Name, fn func(cur []*Subscription) []*Subscription) {
	for {
		s.mu.Lock()
		cur := s.subs[name]
		s.mu.Unlock()

		var curSubs []*Subscription
		if cur != nil {
			curSubs = cur.subs
		}
		next := fn(curSubs)

		s.mu.Lock()
		if s.subs[name] != cur {
			s.mu.Unlock()
			continue
		}
		if len(next) == 0 {
			delete(s.subs, name)
		} else {
			s.subs[name] = &snapshot{subs: next}
		}
		s.mu.Unlock()
		return
	}
}

func (s *Service) remove(sub *Subscription) {
	s.modify(sub.name, func(cur []*Subscription) []*Subscription {
		next := make([]*Subscription, 0, len(cur))
		for _, v := range cur {
			if v != sub {
				next = append(next, v)
			}
		}
		return next
	})
}

// Subscription is a handle to a registered handler.
type Subscription struct {
	service    *Proxy
	name       *property.Name
	dispatcher dispatch.Dispatcher
	handler    Handler
	subscribed atomic.Bool
}

// Name returns the notification name.
func (s *Subscription) Name() *property.Name { return s.name }

// Dispatcher returns the dispatcher the handler runs on, or nil.
func (s *Subscription) Dispatcher() dispatch.Dispatcher { return s.dispatcher }

// Service returns the owning service, or nil if it has been collected.
func (s *Subscription) Service() *Service { return s.service.Service() }

// IsSubscribed reports whether the handler may still be invoked.
func (s *Subscription) IsSubscribed() bool { return s.subscribed.Load() }

// Unsubscribe stops future deliveries. Handlers already posted to another
// dispatcher check IsSubscribed before running. It is safe to call more than
// once, including from within the handler.
func (s *Subscription) Unsubscribe() {
	if !s.subscribed.CompareAndSwap(true, false) {
		return
	}
	if svc := s.service.Service(); svc != nil {
		svc.remove(s)
	}
}

// HandlerPanicError wraps a value recovered from a panicking handler.
type HandlerPanicError struct {
	Name  *property.Name
	Value any
	Stack []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("notify: handler for %s panicked: %v", e.Name, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *HandlerPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
