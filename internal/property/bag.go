package property

import (
	"sync"
)

// Bag is a thread-safe map from *Name to value. Values are held by reference:
// storing a value transfers it to the bag, and it stays alive for as long as
// any holder keeps it.
//
// Every operation is serialized by a per-bag mutex. Keys are compared by
// pointer; string contents are never hashed. The zero value is an empty bag.
type Bag struct {
	mu      sync.Mutex
	entries map[*Name]any
}

// NewBag returns an empty bag.
func NewBag() *Bag {
	return &Bag{entries: make(map[*Name]any)}
}

// Get returns the value stored under name, or nil.
func (b *Bag) Get(name *Name) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries[name]
}

// Lookup is like Get but also reports presence.
func (b *Bag) Lookup(name *Name) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.entries[name]
	return v, ok
}

// Set stores value under name and returns the previous value, possibly nil.
// Setting a nil value removes the entry.
func (b *Bag) Set(name *Name, value any) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.entries[name]
	if value == nil {
		delete(b.entries, name)
	} else {
		if b.entries == nil {
			b.entries = make(map[*Name]any)
		}
		b.entries[name] = value
	}
	return prev
}

// GetOrCreate returns the value under name. If absent, create is invoked
// exactly once, under the bag lock, and its non-nil result is stored. create
// must not call back into the same bag.
func (b *Bag) GetOrCreate(name *Name, create func() any) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.entries[name]; ok {
		return v
	}
	if create == nil {
		return nil
	}
	v := create()
	if v != nil {
		if b.entries == nil {
			b.entries = make(map[*Name]any)
		}
		b.entries[name] = v
	}
	return v
}

// Remove deletes name and returns the value it held, possibly nil.
func (b *Bag) Remove(name *Name) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.entries[name]
	delete(b.entries, name)
	return prev
}

// CopyFrom replaces the contents of b with a snapshot of src taken
// atomically with respect to src.
func (b *Bag) CopyFrom(src *Bag) {
	if src == b {
		return
	}
	snapshot := src.Snapshot()
	b.mu.Lock()
	b.entries = snapshot
	b.mu.Unlock()
}

// Snapshot returns a copy of the current contents.
func (b *Bag) Snapshot() map[*Name]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[*Name]any, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Get returns the typed value stored under id. The second result is false if
// the entry is missing or holds another type.
func Get[T any](b *Bag, id ID[T]) (T, bool) {
	v, ok := b.Get(id.name).(T)
	return v, ok
}

// Set stores a typed value and returns the previous one, if it had type T.
func Set[T any](b *Bag, id ID[T], value T) (T, bool) {
	prev, ok := b.Set(id.name, value).(T)
	return prev, ok
}

// GetOrCreate returns the typed value under id, creating it once if absent.
// It panics if the existing entry has a different type.
func GetOrCreate[T any](b *Bag, id ID[T], create func() T) T {
	v := b.GetOrCreate(id.name, func() any { return create() })
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

// Remove deletes id and returns the removed typed value, if any.
func Remove[T any](b *Bag, id ID[T]) (T, bool) {
	prev, ok := b.Remove(id.name).(T)
	return prev, ok
}
