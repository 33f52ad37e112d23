// Package module implements native module registration, the module builder
// and the bridge that runs module members on the right dispatcher.
//
// A module is declared once, process-wide, with Register. When a host binds
// modules to a script context, each registration's Provider is called with a
// fresh Builder, on which it declares initializers, finalizers, constant
// providers, methods and sync methods. Build then turns the builder into an
// Instance bound to the context.
package module

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/property"
)

// DefaultEventEmitterName is the script-side event emitter used when a
// module does not name one.
const DefaultEventEmitterName = "RCTDeviceEventEmitter"

var (
	// UIDispatcher selects the host's UI dispatcher as a module dispatcher.
	UIDispatcher = dispatch.UIDispatcherProperty.Name()
	// JSDispatcher selects the JS dispatcher, which is also the default.
	JSDispatcher = dispatch.JSDispatcherProperty.Name()
)

// Info describes a module registration.
type Info struct {
	// StructName identifies the implementing type in diagnostics.
	StructName string
	// ModuleName is the name visible to script.
	ModuleName string
	// EventEmitterName defaults to DefaultEventEmitterName.
	EventEmitterName string
	// DispatcherName is the property bag entry holding the dispatcher the
	// module's members run on. Nil means the JS dispatcher.
	DispatcherName *property.Name
}

func (i Info) normalize() Info {
	if i.EventEmitterName == "" {
		i.EventEmitterName = DefaultEventEmitterName
	}
	return i
}

// UsesJSDispatcher reports whether the module runs entirely on the JS
// dispatcher.
func (i Info) UsesJSDispatcher() bool {
	return i.DispatcherName == nil || i.DispatcherName == JSDispatcher
}

// Provider declares a module's members on b and returns the module object.
type Provider func(b *Builder) any

// Registration is a process-global module declaration.
type Registration struct {
	Info     Info
	Provider Provider
}

// registrySet holds registrations and the outcome of validating them.
type registrySet struct {
	mu        sync.Mutex
	list      []*Registration
	validated bool
	once      sync.Once
	err       error
}

var registry registrySet

// Register declares a module process-wide. Registrations are usually made
// from init functions. Duplicate module or struct names are fatal, reported
// when the registrations are first used.
func Register(info Info, provider Provider) {
	if provider == nil {
		crash("nil provider for module %q", info.ModuleName)
	}
	registry.add(&Registration{Info: info.normalize(), Provider: provider})
}

// Registrations returns the process-global registrations in registration
// order. The first call validates them; a failed validation panics on every
// call.
func Registrations() []*Registration {
	return registry.registrations()
}

func (r *registrySet) add(reg *Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, reg)
	if r.validated {
		if err := validate(r.list); err != nil {
			r.list = r.list[:len(r.list)-1]
			panic(err)
		}
	}
}

func (r *registrySet) registrations() []*Registration {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.err = validate(r.list)
		r.validated = r.err == nil
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		panic(r.err)
	}
	out := make([]*Registration, len(r.list))
	copy(out, r.list)
	return out
}

// validate checks module and struct names are unique, naming both colliding
// registrations.
func validate(regs []*Registration) error {
	byModule := make(map[string]*Registration, len(regs))
	byStruct := make(map[string]*Registration, len(regs))
	var errs []error
	for _, reg := range regs {
		if reg.Info.ModuleName == "" {
			errs = append(errs, &InvariantError{msg: fmt.Sprintf("registration for struct %q has no module name", reg.Info.StructName)})
			continue
		}
		if prev, ok := byModule[reg.Info.ModuleName]; ok {
			errs = append(errs, &InvariantError{msg: fmt.Sprintf("duplicate module name %q: declared by %q and %q",
				reg.Info.ModuleName, prev.Info.StructName, reg.Info.StructName)})
		} else {
			byModule[reg.Info.ModuleName] = reg
		}
		if reg.Info.StructName == "" {
			continue
		}
		if prev, ok := byStruct[reg.Info.StructName]; ok {
			errs = append(errs, &InvariantError{msg: fmt.Sprintf("duplicate struct name %q: declared for modules %q and %q",
				reg.Info.StructName, prev.Info.ModuleName, reg.Info.ModuleName)})
		} else {
			byStruct[reg.Info.StructName] = reg
		}
	}
	return errors.Join(errs...)
}
