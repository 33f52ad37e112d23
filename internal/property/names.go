// Package property implements atomized property names and the thread-safe
// property bag shared between the host, its dispatchers and native modules.
//
// Namespaces and names are interned process-wide: two names are equal if and
// only if they are the same pointer, and that holds for the process lifetime.
package property

import (
	"sync"
)

// Namespace scopes property names. Obtain instances via GetNamespace.
type Namespace struct {
	name string
}

// Name is an atomized (namespace, local name) pair. Obtain instances via
// GetName; the zero value is not usable.
type Name struct {
	ns    *Namespace
	local string
}

type nameKey struct {
	ns    *Namespace
	local string
}

var (
	globalNamespace = &Namespace{}
	namespaces      sync.Map // map[string]*Namespace
	names           sync.Map // map[nameKey]*Name
)

// GlobalNamespace returns the distinguished namespace with the empty name.
func GlobalNamespace() *Namespace {
	return globalNamespace
}

// GetNamespace returns the unique Namespace for name, creating it on first use.
// The empty string maps to GlobalNamespace.
func GetNamespace(name string) *Namespace {
	if name == "" {
		return globalNamespace
	}
	if ns, ok := namespaces.Load(name); ok {
		return ns.(*Namespace)
	}
	ns, _ := namespaces.LoadOrStore(name, &Namespace{name: name})
	return ns.(*Namespace)
}

// String returns the namespace name.
func (n *Namespace) String() string {
	return n.name
}

// GetName returns the unique Name for (ns, local). A nil ns means the global
// namespace.
func GetName(ns *Namespace, local string) *Name {
	if ns == nil {
		ns = globalNamespace
	}
	key := nameKey{ns: ns, local: local}
	if n, ok := names.Load(key); ok {
		return n.(*Name)
	}
	n, _ := names.LoadOrStore(key, &Name{ns: ns, local: local})
	return n.(*Name)
}

// MakeName is shorthand for GetName(GetNamespace(ns), local).
func MakeName(ns, local string) *Name {
	return GetName(GetNamespace(ns), local)
}

// Namespace returns the name's namespace.
func (n *Name) Namespace() *Namespace {
	return n.ns
}

// LocalName returns the name without its namespace.
func (n *Name) LocalName() string {
	return n.local
}

// String renders the name as "namespace.local", or just "local" in the
// global namespace.
func (n *Name) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.ns == globalNamespace {
		return n.local
	}
	return n.ns.name + "." + n.local
}

// ID pairs a Name with the Go type of the values stored under it.
type ID[T any] struct {
	name *Name
}

// NewID returns the typed id for (ns, local).
func NewID[T any](ns, local string) ID[T] {
	return ID[T]{name: MakeName(ns, local)}
}

// IDFromName wraps an existing name.
func IDFromName[T any](name *Name) ID[T] {
	return ID[T]{name: name}
}

// Name returns the underlying property name.
func (id ID[T]) Name() *Name {
	return id.name
}
