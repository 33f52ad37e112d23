package dispatch

import (
	"sync"

	"github.com/joeycumines/native-module-host/internal/goroutineid"
)

// UIQueue is the application's UI work queue. Unlike NewSerial, the queue
// does not own a goroutine: the application drives it by calling Run,
// typically from main.
type UIQueue struct {
	*Serial
}

var uiQueues sync.Map // goroutineid.ID -> *UIQueue

// NewUIQueue creates a UI queue. Call Run (or Start) to begin processing.
func NewUIQueue(opts ...Option) *UIQueue {
	opts = append([]Option{WithShutdownNotification(UIDispatcherShutdownName)}, opts...)
	q := &UIQueue{Serial: newSerial("ui", opts)}
	q.onBind = func(id goroutineid.ID) { uiQueues.Store(id, q) }
	q.onExit = func(id goroutineid.ID) { uiQueues.Delete(id) }
	return q
}

// CurrentUIQueue returns the UI queue running on the calling goroutine, or
// nil.
func CurrentUIQueue() *UIQueue {
	if v, ok := uiQueues.Load(goroutineid.Get()); ok {
		return v.(*UIQueue)
	}
	return nil
}

// uiDispatcher is the Dispatcher view over a UI queue handed to hosts and
// modules.
type uiDispatcher struct {
	*Serial
}

var uiDispatcherKey = NewLocalKey[uiDispatcher]("ui-dispatcher")

// UIThreadDispatcher returns the dispatcher for the UI queue running on the
// calling goroutine, or nil when called from anywhere else. Repeated calls on
// the same queue return the same dispatcher.
func UIThreadDispatcher() Dispatcher {
	q := CurrentUIQueue()
	if q == nil || !q.HasThreadAccess() {
		return nil
	}
	d := LocalValue(q, uiDispatcherKey)
	if d.Serial == nil {
		d.Serial = q.Serial
	}
	return d
}
