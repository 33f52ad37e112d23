package dispatch

import (
	"github.com/joeycumines/native-module-host/internal/property"
)

// Namespace holds the dispatcher-related property and notification names.
const Namespace = "NativeHost.Dispatcher"

var (
	// UIDispatcherProperty is the property bag entry holding the UI
	// dispatcher.
	UIDispatcherProperty = property.NewID[Dispatcher](Namespace, "UIDispatcher")
	// JSDispatcherProperty is the property bag entry holding the JS
	// dispatcher.
	JSDispatcherProperty = property.NewID[Dispatcher](Namespace, "JSDispatcher")

	UIDispatcherShutdownName = property.MakeName(Namespace, "UIDispatcherShutdown")
	JSDispatcherShutdownName = property.MakeName(Namespace, "JSDispatcherShutdown")

	JSDispatcherTaskStartingName      = property.MakeName(Namespace, "JSDispatcherTaskStarting")
	JSDispatcherIdleWaitStartingName  = property.MakeName(Namespace, "JSDispatcherIdleWaitStarting")
	JSDispatcherIdleWaitCompletedName = property.MakeName(Namespace, "JSDispatcherIdleWaitCompleted")
)

// CreateSerialDispatcher is shorthand for NewSerial.
func CreateSerialDispatcher(opts ...Option) *Serial {
	return NewSerial(opts...)
}

// GetUIDispatcher returns the UI dispatcher stored in bag, or nil.
func GetUIDispatcher(bag *property.Bag) Dispatcher {
	d, _ := property.Get(bag, UIDispatcherProperty)
	return d
}

// SetUIThreadDispatcher stores the calling goroutine's UI dispatcher in bag.
// It reports false, storing nothing, if the caller is not on a UI queue.
func SetUIThreadDispatcher(bag *property.Bag) bool {
	d := UIThreadDispatcher()
	if d == nil {
		return false
	}
	property.Set(bag, UIDispatcherProperty, d)
	return true
}

// GetJSDispatcher returns the JS dispatcher stored in bag, or nil.
func GetJSDispatcher(bag *property.Bag) Dispatcher {
	d, _ := property.Get(bag, JSDispatcherProperty)
	return d
}

// SetJSDispatcher stores d in bag.
func SetJSDispatcher(bag *property.Bag, d Dispatcher) {
	property.Set(bag, JSDispatcherProperty, d)
}
