package module

import (
	"fmt"

	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
)

// InitializerKind orders initializers: all Field initializers run before any
// Method initializer.
type InitializerKind int

const (
	InitializerField InitializerKind = iota
	InitializerMethod
)

// ReturnKind is how an async method reports its result.
type ReturnKind int

const (
	// ReturnVoid methods report nothing.
	ReturnVoid ReturnKind = iota
	// ReturnCallback methods receive one callback.
	ReturnCallback
	// ReturnTwoCallbacks methods receive resolve and reject callbacks.
	ReturnTwoCallbacks
	// ReturnPromise methods receive resolve and reject, and script sees a
	// promise.
	ReturnPromise
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnVoid:
		return "Void"
	case ReturnCallback:
		return "Callback"
	case ReturnTwoCallbacks:
		return "TwoCallbacks"
	case ReturnPromise:
		return "Promise"
	default:
		return fmt.Sprintf("ReturnKind(%d)", int(k))
	}
}

// ResultCallback concludes an async call. The values written to out become
// the script callback's arguments.
type ResultCallback func(out jsvalue.Writer)

type (
	InitializerDelegate      func(ctx hostapi.Context)
	FinalizerDelegate        func()
	ConstantProviderDelegate func(w jsvalue.Writer)
	// MethodDelegate implements an async method. resolve and reject are nil
	// where the return kind has no such callback.
	MethodDelegate     func(args *jsvalue.Reader, out jsvalue.Writer, resolve, reject ResultCallback)
	SyncMethodDelegate func(args *jsvalue.Reader, out jsvalue.Writer)
)

type initializer struct {
	fn       InitializerDelegate
	kind     InitializerKind
	preferJS bool
}

type finalizer struct {
	fn       FinalizerDelegate
	preferJS bool
}

type constantProvider struct {
	fn       ConstantProviderDelegate
	preferJS bool
}

type method struct {
	name     string
	fn       MethodDelegate
	kind     ReturnKind
	preferJS bool
}

type syncMethod struct {
	name     string
	fn       SyncMethodDelegate
	preferJS bool
}

const getConstantsName = "getConstants"

// Builder accumulates a module's members. A Provider receives one per module
// instance.
type Builder struct {
	info         Info
	initializers []initializer
	finalizers   []finalizer
	constants    []constantProvider
	methods      map[string]*method
	syncMethods  map[string]*syncMethod
	memberOrder  []string
}

// NewBuilder returns an empty builder for a module described by info.
func NewBuilder(info Info) *Builder {
	return &Builder{
		info:        info.normalize(),
		methods:     make(map[string]*method),
		syncMethods: make(map[string]*syncMethod),
	}
}

// Info returns the module description.
func (b *Builder) Info() Info { return b.info }

// AddInitializer adds an initializer. With preferJS the initializer runs on
// the JS dispatcher, otherwise on the module dispatcher if there is one.
func (b *Builder) AddInitializer(fn InitializerDelegate, kind InitializerKind, preferJS bool) {
	if fn == nil {
		crash("%s: nil initializer", b.info.ModuleName)
	}
	b.initializers = append(b.initializers, initializer{fn: fn, kind: kind, preferJS: preferJS})
}

// AddFinalizer adds a finalizer, run once when the JS dispatcher shuts
// down.
func (b *Builder) AddFinalizer(fn FinalizerDelegate, preferJS bool) {
	if fn == nil {
		crash("%s: nil finalizer", b.info.ModuleName)
	}
	b.finalizers = append(b.finalizers, finalizer{fn: fn, preferJS: preferJS})
}

// AddConstantProvider adds a provider that writes object members into w.
// Constant providers and a method named getConstants are mutually exclusive.
func (b *Builder) AddConstantProvider(fn ConstantProviderDelegate, preferJS bool) {
	if fn == nil {
		crash("%s: nil constant provider", b.info.ModuleName)
	}
	b.ensureMemberNotSet(getConstantsName, "constant provider")
	b.constants = append(b.constants, constantProvider{fn: fn, preferJS: preferJS})
}

// AddMethod adds an async method.
func (b *Builder) AddMethod(name string, kind ReturnKind, fn MethodDelegate, preferJS bool) {
	if fn == nil {
		crash("%s.%s: nil method", b.info.ModuleName, name)
	}
	if kind < ReturnVoid || kind > ReturnPromise {
		crash("%s.%s: invalid return kind %v", b.info.ModuleName, name, kind)
	}
	b.ensureMemberNotSet(name, "method")
	if name == getConstantsName && len(b.constants) != 0 {
		crash("%s: method %q conflicts with constant providers", b.info.ModuleName, name)
	}
	b.methods[name] = &method{name: name, fn: fn, kind: kind, preferJS: preferJS}
	b.memberOrder = append(b.memberOrder, name)
}

// AddSyncMethod adds a method that returns its result directly to script.
func (b *Builder) AddSyncMethod(name string, fn SyncMethodDelegate, preferJS bool) {
	if fn == nil {
		crash("%s.%s: nil sync method", b.info.ModuleName, name)
	}
	b.ensureMemberNotSet(name, "sync method")
	if name == getConstantsName && len(b.constants) != 0 {
		crash("%s: sync method %q conflicts with constant providers", b.info.ModuleName, name)
	}
	b.syncMethods[name] = &syncMethod{name: name, fn: fn, preferJS: preferJS}
	b.memberOrder = append(b.memberOrder, name)
}

func (b *Builder) ensureMemberNotSet(name, what string) {
	if _, ok := b.methods[name]; ok {
		crash("%s: %s %q conflicts with an existing method", b.info.ModuleName, what, name)
	}
	if _, ok := b.syncMethods[name]; ok {
		crash("%s: %s %q conflicts with an existing sync method", b.info.ModuleName, what, name)
	}
}

// AddPromiseMethod adds a Promise method backed by a plain function. The
// result is converted with jsvalue.Write; an error rejects the promise.
func (b *Builder) AddPromiseMethod(name string, fn func(args *jsvalue.Reader) (any, error), preferJS bool) {
	b.AddMethod(name, ReturnPromise, func(args *jsvalue.Reader, _ jsvalue.Writer, resolve, reject ResultCallback) {
		// a failed Write may leave frames open, so each outcome gets its own writer
		result, err := fn(args)
		if err == nil {
			out := jsvalue.NewValueWriter()
			if err = jsvalue.Write(out, result); err == nil {
				resolve(out)
				return
			}
		}
		out := jsvalue.NewValueWriter()
		WriteError(out, err)
		reject(out)
	}, preferJS)
}

// AddSyncFunc adds a sync method backed by a plain function. An error is
// surfaced to script as an exception.
func (b *Builder) AddSyncFunc(name string, fn func(args *jsvalue.Reader) (any, error), preferJS bool) {
	b.AddSyncMethod(name, func(args *jsvalue.Reader, out jsvalue.Writer) {
		result, err := fn(args)
		if err == nil {
			err = jsvalue.Write(out, result)
		}
		if err != nil {
			panic(scriptError{err: err})
		}
	}, preferJS)
}

// scriptError carries an error out of a sync delegate. It is surfaced to
// the caller rather than reported as a failure.
type scriptError struct {
	err error
}

// AddConstant adds a constant provider writing a single named value.
func (b *Builder) AddConstant(name string, value any, preferJS bool) {
	v, err := jsvalue.From(value)
	if err != nil {
		crash("%s: constant %q: %v", b.info.ModuleName, name, err)
	}
	b.AddConstantProvider(func(w jsvalue.Writer) {
		w.WritePropertyName(name)
		jsvalue.WriteValue(w, v)
	}, preferJS)
}

// WriteError writes the conventional error object passed to reject.
func WriteError(w jsvalue.Writer, err error) {
	w.WriteObjectBegin()
	w.WritePropertyName("message")
	w.WriteString(err.Error())
	w.WriteObjectEnd()
}
