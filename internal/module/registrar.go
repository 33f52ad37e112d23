package module

import (
	"sync"

	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/property"
)

// Registrar is the set of modules available to one host. Entries come from
// explicit Add calls and, via AddRegistered, from the process-global
// registrations.
type Registrar struct {
	mu      sync.Mutex
	entries map[string]*Registration
	order   []string
}

// NewRegistrar returns an empty Registrar.
func NewRegistrar() *Registrar {
	return &Registrar{entries: make(map[string]*Registration)}
}

// Add makes a module available under moduleName. A nil dispatcherName means
// the JS dispatcher. Adding a name twice is fatal.
func (r *Registrar) Add(moduleName string, provider Provider, dispatcherName *property.Name) {
	r.AddInfo(Info{ModuleName: moduleName, DispatcherName: dispatcherName}, provider)
}

// AddInfo makes a module described by info available.
func (r *Registrar) AddInfo(info Info, provider Provider) {
	if info.ModuleName == "" {
		crash("module registered without a name")
	}
	if provider == nil {
		crash("nil provider for module %q", info.ModuleName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[info.ModuleName]; ok {
		crash("duplicate module name %q: declared by %q and %q",
			info.ModuleName, prev.Info.StructName, info.StructName)
	}
	r.entries[info.ModuleName] = &Registration{Info: info.normalize(), Provider: provider}
	r.order = append(r.order, info.ModuleName)
}

// AddRegistered adds every process-global registration.
func (r *Registrar) AddRegistered() {
	for _, reg := range Registrations() {
		r.AddInfo(reg.Info, reg.Provider)
	}
}

// Names returns the module names in the order they were added.
func (r *Registrar) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the registration for moduleName.
func (r *Registrar) Lookup(moduleName string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[moduleName]
	return reg, ok
}

// TryBuild builds moduleName against ctx, reporting false if no such module
// was added.
func (r *Registrar) TryBuild(moduleName string, ctx hostapi.Context, opts ...BuildOption) (*Instance, bool) {
	reg, ok := r.Lookup(moduleName)
	if !ok {
		return nil, false
	}
	return Build(reg.Info, reg.Provider, ctx, opts...), true
}
