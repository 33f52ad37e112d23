package host

import (
	"context"

	"github.com/dop251/goja"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
)

// ModuleDescription summarizes a built module's script surface.
type ModuleDescription struct {
	Name        string
	Dispatcher  string
	Methods     []MethodDescription
	SyncMethods []string
	Constants   jsvalue.Value
}

// MethodDescription is an async method and how it returns results.
type MethodDescription struct {
	Name string
	Kind module.ReturnKind
}

// Describe lists the built modules in build order. Constants are gathered
// the same way script would see them.
func (h *Host) Describe(ctx context.Context) ([]ModuleDescription, error) {
	if !h.started.Load() {
		return nil, ErrNotStarted
	}
	var out []ModuleDescription
	err := h.onJS(ctx, func(*goja.Runtime) error {
		for _, inst := range h.instances {
			info := inst.Info()
			d := ModuleDescription{
				Name:        info.ModuleName,
				Dispatcher:  module.JSDispatcher.String(),
				SyncMethods: inst.SyncMethodNames(),
				Constants:   inst.Constants(),
			}
			if !info.UsesJSDispatcher() {
				d.Dispatcher = info.DispatcherName.String()
			}
			for _, name := range inst.MethodNames() {
				kind, _ := inst.ReturnKind(name)
				d.Methods = append(d.Methods, MethodDescription{Name: name, Kind: kind})
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}
