// Package handle provides the reference-counted primitives the host is built
// on: an embeddable atomic counter, a generic one-word Handle, and a Table that
// maps opaque IDs to objects for callers on the far side of an ABI boundary.
package handle

import (
	"fmt"
	"sync/atomic"
)

// RefCount is an atomic reference counter, intended to be embedded.
// The zero value has a count of zero; owners normally start it with Init.
type RefCount struct {
	n atomic.Int32
}

// Init sets the count to one. It must be called before the value is shared.
func (r *RefCount) Init() {
	r.n.Store(1)
}

// AddRef increments the count.
func (r *RefCount) AddRef() {
	r.n.Add(1)
}

// Release decrements the count and reports whether it reached zero.
// Releasing past zero is a programmer error and panics.
func (r *RefCount) Release() bool {
	n := r.n.Add(-1)
	if n < 0 {
		panic("handle: reference count released below zero")
	}
	return n == 0
}

// Count returns the current count. Intended for diagnostics and tests.
func (r *RefCount) Count() int32 {
	return r.n.Load()
}

// Object is anything with explicit reference counting.
type Object interface {
	AddRef()
	Release()
}

// Handle is a single pointer to a heap box holding a value and its count.
//
// Copying a Handle by assignment does not add a reference; use Clone for that.
// Each Handle obtained from New or Clone must be released exactly once, after
// which the destroy function passed to New runs exactly once.
type Handle[T any] struct {
	b *box[T]
}

type box[T any] struct {
	RefCount
	value     T
	destroy   func(T)
	destroyed atomic.Bool
}

// New allocates a box for value with a count of one. destroy may be nil.
func New[T any](value T, destroy func(T)) Handle[T] {
	b := &box[T]{value: value, destroy: destroy}
	b.Init()
	return Handle[T]{b: b}
}

// IsNil reports whether h points at nothing.
func (h Handle[T]) IsNil() bool {
	return h.b == nil
}

// Get returns the boxed value. It panics on a nil or destroyed handle.
func (h Handle[T]) Get() T {
	h.check()
	return h.b.value
}

// Clone adds a reference and returns a second handle to the same box.
// Cloning a nil handle returns a nil handle.
func (h Handle[T]) Clone() Handle[T] {
	if h.b == nil {
		return h
	}
	h.check()
	h.b.AddRef()
	return h
}

// Move transfers ownership out of h, leaving it nil.
func (h *Handle[T]) Move() Handle[T] {
	out := *h
	h.b = nil
	return out
}

// Release drops the reference held by h and clears it. When the count reaches
// zero the destroy function is invoked. Releasing a nil handle does nothing.
func (h *Handle[T]) Release() {
	b := h.b
	if b == nil {
		return
	}
	h.b = nil
	if b.Release() {
		if !b.destroyed.CompareAndSwap(false, true) {
			panic("handle: object destroyed twice")
		}
		if b.destroy != nil {
			b.destroy(b.value)
		}
		var zero T
		b.value = zero
	}
}

// Count returns the box's reference count, or 0 for a nil handle.
func (h Handle[T]) Count() int32 {
	if h.b == nil {
		return 0
	}
	return h.b.Count()
}

// Same reports whether both handles point at the same box.
func (h Handle[T]) Same(other Handle[T]) bool {
	return h.b == other.b
}

func (h Handle[T]) check() {
	if h.b == nil {
		panic("handle: use of nil handle")
	}
	if h.b.destroyed.Load() {
		panic(fmt.Sprintf("handle: use of destroyed %T", h.b.value))
	}
}
