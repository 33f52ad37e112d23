package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestSerial_RunsTasksInOrder(t *testing.T) {
	s := NewSerial(WithName("ordered"))
	defer s.QuitSync()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 100 {
		s.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	require.NoError(t, RunSync(s, func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerial_ThreadAccess(t *testing.T) {
	s := NewSerial()
	defer s.QuitSync()

	assert.False(t, s.HasThreadAccess())
	assert.Nil(t, Current())

	var (
		access  bool
		current Dispatcher
	)
	require.NoError(t, RunSync(s, func() {
		access = s.HasThreadAccess()
		current = Current()
	}))
	assert.True(t, access)
	assert.Same(t, s, current)
}

func TestSerial_InvokeElsePost(t *testing.T) {
	s := NewSerial()
	defer s.QuitSync()

	var order []string
	require.NoError(t, RunSync(s, func() {
		s.InvokeElsePost(func() { order = append(order, "inline") })
		order = append(order, "after")
	}))
	assert.Equal(t, []string{"inline", "after"}, order)

	ran := make(chan struct{})
	s.InvokeElsePost(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("posted task did not run")
	}
}

func TestSerial_QuitSyncDrainsAndRefuses(t *testing.T) {
	var shutdownRan atomic.Bool
	s := NewSerial(WithHooks(Hooks{
		OnShutdownStarting: func() { shutdownRan.Store(true) },
	}))

	var ran atomic.Int32
	block := make(chan struct{})
	s.Post(func() { <-block })
	for range 10 {
		s.Post(func() { ran.Add(1) })
	}

	quit := make(chan struct{})
	go func() {
		s.QuitSync()
		close(quit)
	}()

	// wait for QuitSync to start refusing
	require.Eventually(t, func() bool { return !s.TryPost(func() {}) }, 5*time.Second, time.Millisecond)
	close(block)
	<-quit

	assert.Equal(t, int32(10), ran.Load())
	assert.True(t, shutdownRan.Load())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}

	s.Post(func() { t.Error("task ran after shutdown") })
	assert.ErrorIs(t, RunSync(s, func() {}), ErrStopped)

	// idempotent
	s.QuitSync()
}

func TestSerial_QuitSyncFromOwnGoroutine(t *testing.T) {
	s := NewSerial()
	s.Post(func() { s.QuitSync() })
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestSerial_QuitBeforeStart(t *testing.T) {
	s := newSerial("never", nil)
	s.Post(func() { t.Error("should not run") })
	s.QuitSync()
	<-s.Done()
	s.Start() // returns immediately
}

func TestSerial_PanicsAreReported(t *testing.T) {
	errs := make(chan error, 1)
	s := NewSerial(WithName("panicky"), WithErrorHandler(func(err error) { errs <- err }))
	defer s.QuitSync()

	boom := errors.New("boom")
	s.Post(func() { panic(boom) })

	select {
	case err := <-errs:
		var tp *TaskPanicError
		require.ErrorAs(t, err, &tp)
		assert.Equal(t, "panicky", tp.Dispatcher)
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("panic not reported")
	}

	// still serving
	require.NoError(t, RunSync(s, func() {}))
}

func TestSerial_LocalsClosedOnQuit(t *testing.T) {
	s := NewSerial()
	var closed atomic.Bool
	s.Locals().Store("conn", closerFunc(func() error {
		closed.Store(true)
		return nil
	}))

	key := NewLocalKey[int]("counter")
	require.NoError(t, RunSync(s, func() {
		*LocalValue(s, key)++
		*LocalValue(s, key)++
	}))
	assert.Equal(t, 2, *LocalValue(s, key))

	s.QuitSync()
	assert.True(t, closed.Load())
	_, ok := s.Locals().Load("conn")
	assert.False(t, ok)
}

func TestSerial_IdleHooks(t *testing.T) {
	var starting, completed atomic.Int32
	s := NewSerial(WithHooks(Hooks{
		OnIdleWaitStarting:  func() { starting.Add(1) },
		OnIdleWaitCompleted: func() { completed.Add(1) },
	}))
	defer s.QuitSync()

	require.Eventually(t, func() bool { return starting.Load() >= 1 }, 5*time.Second, time.Millisecond)
	require.NoError(t, RunSync(s, func() {}))
	assert.GreaterOrEqual(t, completed.Load(), int32(1))
}
