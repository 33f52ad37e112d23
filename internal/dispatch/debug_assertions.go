//go:build debug

// Package dispatch debug_assertions detects synchronous wait cycles between
// dispatchers.
//
// To enable: go build -tags debug ./...
// To test: go test -tags debug ./...
package dispatch

import (
	"fmt"
	"runtime"
	"sync"
)

var (
	waitsMu  sync.Mutex
	waitsFor = map[Dispatcher]Dispatcher{}
)

// wrapper is implemented by dispatcher views that share another dispatcher's
// queue.
type wrapper interface {
	unwrap() Dispatcher
}

func (d *uiDispatcher) unwrap() Dispatcher { return d.Serial }

// canonical resolves views to the dispatcher owning the queue, so waits on a
// view and on its queue are the same edge.
func canonical(d Dispatcher) Dispatcher {
	for {
		w, ok := d.(wrapper)
		if !ok {
			return d
		}
		d = w.unwrap()
	}
}

// debugEnterWait records that caller is about to block on target, panicking
// if target is already (transitively) blocked on caller.
func debugEnterWait(caller, target Dispatcher) {
	if caller == nil {
		return
	}
	caller, target = canonical(caller), canonical(target)

	waitsMu.Lock()
	defer waitsMu.Unlock()
	for d, hops := target, 0; d != nil && hops <= len(waitsFor); d, hops = waitsFor[d], hops+1 {
		if d == caller {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			panic(fmt.Sprintf("DEADLOCK: %s waits synchronously on %s, which is waiting on %s\nStack:\n%s",
				nameOf(caller), nameOf(target), nameOf(caller), buf[:n]))
		}
	}
	waitsFor[caller] = target
}

// debugExitWait clears the wait recorded by debugEnterWait.
func debugExitWait(caller Dispatcher) {
	if caller == nil {
		return
	}
	waitsMu.Lock()
	delete(waitsFor, canonical(caller))
	waitsMu.Unlock()
}
