package dispatch

import (
	"errors"
	"io"
	"sync"
)

// Locals is a per-dispatcher key/value store. Values that implement
// io.Closer are closed when the dispatcher stops.
type Locals struct {
	mu     sync.Mutex
	values map[any]any
	closed bool
}

// Load returns the value stored under key.
func (l *Locals) Load(key any) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.values[key]
	return v, ok
}

// Store sets the value for key. Storing after the dispatcher stopped is
// ignored.
func (l *Locals) Store(key, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.values == nil {
		l.values = make(map[any]any)
	}
	l.values[key] = value
}

// GetOrCreate returns the value for key, calling create to make it if absent.
func (l *Locals) GetOrCreate(key any, create func() any) any {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.values[key]; ok {
		return v
	}
	v := create()
	if !l.closed {
		if l.values == nil {
			l.values = make(map[any]any)
		}
		l.values[key] = v
	}
	return v
}

// Delete removes key.
func (l *Locals) Delete(key any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.values, key)
}

func (l *Locals) close() error {
	l.mu.Lock()
	values := l.values
	l.values = nil
	l.closed = true
	l.mu.Unlock()

	var errs []error
	for _, v := range values {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// LocalKey is a typed key into a dispatcher's Locals.
type LocalKey[T any] struct {
	name string
}

// NewLocalKey returns a new unique key. The name is informational.
func NewLocalKey[T any](name string) *LocalKey[T] {
	return &LocalKey[T]{name: name}
}

func (k *LocalKey[T]) String() string { return k.name }

// LocalValue returns the value for key in d's locals, creating a zero T on
// first use.
func LocalValue[T any](d Dispatcher, key *LocalKey[T]) *T {
	return d.Locals().GetOrCreate(key, func() any { return new(T) }).(*T)
}
