// Package hostapi defines the narrow interface module code uses to reach
// the host: shared properties, notifications, the two well-known dispatchers
// and calls into the script runtime.
package hostapi

import (
	"log/slog"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/notify"
	"github.com/joeycumines/native-module-host/internal/property"
)

// State is the lifecycle state of a host instance.
type State int32

const (
	StateLoading State = iota
	StateWaitingForDebugger
	StateLoaded
	StateHasError
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateWaitingForDebugger:
		return "WaitingForDebugger"
	case StateLoaded:
		return "Loaded"
	case StateHasError:
		return "HasError"
	case StateUnloaded:
		return "Unloaded"
	default:
		return "Unknown"
	}
}

// Context is handed to module initializers.
type Context interface {
	// Properties returns the instance property bag.
	Properties() *property.Bag

	// Notifications returns the instance notification service.
	Notifications() *notify.Service

	// UIDispatcher returns the UI dispatcher, or nil if the host has none.
	UIDispatcher() dispatch.Dispatcher

	// JSDispatcher returns the dispatcher the script runtime runs on.
	JSDispatcher() dispatch.Dispatcher

	// CallJSFunction schedules moduleName.method(args...) on the JS
	// dispatcher. The module must have been registered by script as a
	// callable module.
	CallJSFunction(moduleName, method string, args ...jsvalue.Value)

	// EmitJSEvent schedules emitter.emit(eventName, args...) on the JS
	// dispatcher.
	EmitJSEvent(emitter, eventName string, args ...jsvalue.Value)

	// State returns the current instance state.
	State() State

	// ReportError reports a failure that was recovered locally.
	ReportError(err error)

	// Logger returns the instance logger.
	Logger() *slog.Logger
}
