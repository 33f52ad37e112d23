package handle

import (
	"sync"
)

// ID is an opaque one-word reference to an object stored in a Table.
// The zero ID is never issued.
type ID uintptr

// Status is the result of every Table operation that can fail.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "error"
}

// Destroyer is implemented by objects that need a hook once the last ID
// reference is released.
type Destroyer interface {
	Destroy()
}

// Table hands out IDs for Go objects so that callers which cannot hold Go
// pointers may still retain them. All methods are safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[ID]*entry
	next    ID
}

type entry struct {
	RefCount
	obj any
}

// Default is the process-wide table behind package abi.
var Default = NewTable()

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[ID]*entry)}
}

// FromObject stores obj with a count of one and writes its ID to out.
// A nil obj is rejected.
func (t *Table) FromObject(obj any, out *ID) Status {
	if obj == nil || out == nil {
		return StatusError
	}
	e := &entry{obj: obj}
	e.Init()
	t.mu.Lock()
	t.next++
	id := t.next
	t.entries[id] = e
	t.mu.Unlock()
	*out = id
	return StatusOK
}

// AddRef adds a reference to id.
func (t *Table) AddRef(id ID) Status {
	t.mu.RLock()
	e, ok := t.entries[id]
	if ok {
		e.AddRef()
	}
	t.mu.RUnlock()
	if !ok {
		return StatusError
	}
	return StatusOK
}

// Release drops a reference to id, removing the entry and destroying the
// object when the count reaches zero.
func (t *Table) Release(id ID) Status {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return StatusError
	}
	last := e.Release()
	if last {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if last {
		if d, ok := e.obj.(Destroyer); ok {
			d.Destroy()
		}
	}
	return StatusOK
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// ToObject looks up id and writes the object, asserted to T, to out.
// It fails if id is unknown or holds a different type.
func ToObject[T any](t *Table, id ID, out *T) Status {
	if out == nil {
		return StatusError
	}
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return StatusError
	}
	v, ok := e.obj.(T)
	if !ok {
		return StatusError
	}
	*out = v
	return StatusOK
}
