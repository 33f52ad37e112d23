package dispatch

import (
	"testing"

	"github.com/joeycumines/native-module-host/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUIQueue_UIThreadDispatcher(t *testing.T) {
	q := NewUIQueue()
	go q.Run()
	defer q.QuitSync()

	assert.Nil(t, UIThreadDispatcher())
	assert.Same(t, UIDispatcherShutdownName, q.ShutdownNotificationName())

	var first, second Dispatcher
	var onQueue *UIQueue
	require.NoError(t, RunSync(q, func() {
		first = UIThreadDispatcher()
		second = UIThreadDispatcher()
		onQueue = CurrentUIQueue()
	}))
	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Same(t, q, onQueue)

	var access bool
	require.NoError(t, RunSync(first, func() { access = first.HasThreadAccess() }))
	assert.True(t, access)
}

func TestUIQueue_PropertyBag(t *testing.T) {
	q := NewUIQueue()
	go q.Run()
	defer q.QuitSync()

	bag := &property.Bag{}
	assert.False(t, SetUIThreadDispatcher(bag))
	assert.Nil(t, GetUIDispatcher(bag))

	var ok bool
	require.NoError(t, RunSync(q, func() { ok = SetUIThreadDispatcher(bag) }))
	assert.True(t, ok)

	d := GetUIDispatcher(bag)
	require.NotNil(t, d)
	var access bool
	require.NoError(t, RunSync(d, func() { access = q.HasThreadAccess() }))
	assert.True(t, access)
}
