// Package samples contains native modules that record which dispatcher each
// of their members runs on. They exercise every dispatcher placement a
// module can declare and are used by the host's end-to-end tests and the
// rnhost "samples" demo.
//
// The modules append to the EventLog stored in the context properties under
// EventLogProperty, and record a failure whenever a member runs on the wrong
// dispatcher or receives an unexpected argument.
package samples

import (
	"fmt"
	"slices"
	"sync"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/joeycumines/native-module-host/internal/property"
)

// Namespace holds the sample property names.
const Namespace = "NativeHost.Samples"

var (
	// CustomDispatcherName is where CustomDispatchedModule and
	// CustomDispatchedModule3 expect their serial dispatcher.
	CustomDispatcherName = property.MakeName(Namespace, "CustomDispatcher")

	// EventLogProperty holds the *EventLog the modules write to.
	EventLogProperty = property.NewID[*EventLog](Namespace, "EventLog")
)

// EventLog is a concurrency-safe record of module events.
type EventLog struct {
	mu       sync.Mutex
	events   []string
	failures []string
	changed  chan struct{}
}

// NewEventLog returns an empty log.
func NewEventLog() *EventLog {
	return &EventLog{changed: make(chan struct{})}
}

// Log appends event.
func (l *EventLog) Log(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	close(l.changed)
	l.changed = make(chan struct{})
}

// Check records a failure unless ok.
func (l *EventLog) Check(ok bool, format string, args ...any) {
	if ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, fmt.Sprintf(format, args...))
}

// Events returns a copy of the logged events.
func (l *EventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// Failures returns a copy of the recorded failures.
func (l *EventLog) Failures() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.failures)
}

// Has reports whether every one of events has been logged.
func (l *EventLog) Has(events ...string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range events {
		if !slices.Contains(l.events, e) {
			return false
		}
	}
	return true
}

// Changed returns a channel closed on the next Log call.
func (l *EventLog) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// Register adds the sample modules to r. The host must provide a UI
// dispatcher and a dispatcher under CustomDispatcherName.
func Register(r *module.Registrar) {
	r.AddInfo(module.Info{StructName: "samples.defaultDispatched", ModuleName: "DefaultDispatchedModule"},
		single("DefaultDispatchedModule", jsDispatcher))
	r.AddInfo(module.Info{StructName: "samples.uiDispatched", ModuleName: "UIDispatchedModule", DispatcherName: module.UIDispatcher},
		single("UIDispatchedModule", uiDispatcher))
	r.AddInfo(module.Info{StructName: "samples.jsDispatched", ModuleName: "JSDispatchedModule", DispatcherName: module.JSDispatcher},
		single("JSDispatchedModule", jsDispatcher))
	r.AddInfo(module.Info{StructName: "samples.customDispatched", ModuleName: "CustomDispatchedModule", DispatcherName: CustomDispatcherName},
		single("CustomDispatchedModule", customDispatcher))
	r.AddInfo(module.Info{StructName: "samples.uiDispatched3", ModuleName: "UIDispatchedModule3", DispatcherName: module.UIDispatcher},
		mixed("UIDispatchedModule3", "UI", uiDispatcher))
	r.AddInfo(module.Info{StructName: "samples.customDispatched3", ModuleName: "CustomDispatchedModule3", DispatcherName: CustomDispatcherName},
		mixed("CustomDispatchedModule3", "Custom", customDispatcher))
}

// EventLogFor returns the log in ctx's properties, creating it if needed.
func EventLogFor(ctx hostapi.Context) *EventLog {
	return property.GetOrCreate(ctx.Properties(), EventLogProperty, NewEventLog)
}

func jsDispatcher(ctx hostapi.Context) dispatch.Dispatcher { return ctx.JSDispatcher() }
func uiDispatcher(ctx hostapi.Context) dispatch.Dispatcher { return ctx.UIDispatcher() }

func customDispatcher(ctx hostapi.Context) dispatch.Dispatcher {
	d, _ := ctx.Properties().Get(CustomDispatcherName).(dispatch.Dispatcher)
	return d
}

// recorder is the state shared by a sample module's members.
type recorder struct {
	name string
	ctx  hostapi.Context
	log  *EventLog
}

func (r *recorder) on(member string, where func(hostapi.Context) dispatch.Dispatcher) {
	d := where(r.ctx)
	r.log.Check(d != nil && d.HasThreadAccess(), "%s::%s ran on the wrong dispatcher", r.name, member)
	r.log.Log(r.name + "::" + member)
}

func (r *recorder) value(member string, args *jsvalue.Reader, want int64) int64 {
	v, _ := args.Next()
	r.log.Check(v.AsInt64() == want, "%s::%s got %v, want %d", r.name, member, v, want)
	return v.AsInt64()
}

// single declares a module whose members all run on where.
func single(name string, where func(hostapi.Context) dispatch.Dispatcher) module.Provider {
	return func(b *module.Builder) any {
		r := &recorder{name: name}
		b.AddInitializer(func(ctx hostapi.Context) {
			r.ctx = ctx
			r.log = EventLogFor(ctx)
			r.on("Initialize", where)
		}, module.InitializerMethod, false)
		b.AddFinalizer(func() { r.on("Finalize", where) }, false)
		b.AddConstantProvider(func(w jsvalue.Writer) {
			w.WritePropertyName("myConst")
			w.WriteInt64(42)
			r.on("GetConstants", where)
		}, false)
		b.AddMethod("testAsyncMethod", module.ReturnVoid, func(args *jsvalue.Reader, _ jsvalue.Writer, _, _ module.ResultCallback) {
			r.value("TestAsyncMethod", args, 42)
			r.on("TestAsyncMethod", where)
		}, false)
		b.AddSyncMethod("testSyncMethod", func(args *jsvalue.Reader, out jsvalue.Writer) {
			out.WriteInt64(r.value("TestSyncMethod", args, 42))
			r.on("TestSyncMethod", where)
		}, false)
		return r
	}
}

// mixed declares a module with JS dispatcher members alongside members on
// its own dispatcher. JS initializers run first and JS finalizers last.
func mixed(name, label string, where func(hostapi.Context) dispatch.Dispatcher) module.Provider {
	return func(b *module.Builder) any {
		r := &recorder{name: name}
		b.AddInitializer(func(ctx hostapi.Context) {
			r.ctx = ctx
			r.log = EventLogFor(ctx)
			r.on("JSInitialize", jsDispatcher)
		}, module.InitializerMethod, true)
		b.AddInitializer(func(hostapi.Context) { r.on(label+"Initialize", where) }, module.InitializerMethod, false)
		b.AddFinalizer(func() { r.on(label+"Finalize", where) }, false)
		b.AddFinalizer(func() { r.on("JSFinalize", jsDispatcher) }, true)
		b.AddConstantProvider(func(w jsvalue.Writer) {
			w.WritePropertyName("my" + label + "Const")
			w.WriteInt64(42)
			r.on("Get"+label+"Constants", where)
		}, false)
		b.AddConstantProvider(func(w jsvalue.Writer) {
			w.WritePropertyName("myJSConst")
			w.WriteInt64(24)
			r.on("GetJSConstants", jsDispatcher)
		}, true)
		b.AddMethod("test"+label+"AsyncMethod", module.ReturnVoid, func(args *jsvalue.Reader, _ jsvalue.Writer, _, _ module.ResultCallback) {
			r.value("Test"+label+"AsyncMethod", args, 42)
			r.on("Test"+label+"AsyncMethod", where)
		}, false)
		b.AddMethod("testJSAsyncMethod", module.ReturnVoid, func(args *jsvalue.Reader, _ jsvalue.Writer, _, _ module.ResultCallback) {
			r.value("TestJSAsyncMethod", args, 24)
			r.on("TestJSAsyncMethod", jsDispatcher)
		}, true)
		b.AddSyncMethod("test"+label+"SyncMethod", func(args *jsvalue.Reader, out jsvalue.Writer) {
			out.WriteInt64(r.value("Test"+label+"SyncMethod", args, 42))
			r.on("Test"+label+"SyncMethod", where)
		}, false)
		b.AddSyncMethod("testJSSyncMethod", func(args *jsvalue.Reader, out jsvalue.Writer) {
			out.WriteInt64(r.value("TestJSSyncMethod", args, 24))
			r.on("TestJSSyncMethod", jsDispatcher)
		}, true)
		return r
	}
}
