package dispatch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l, err := NewLoop(opts...)
	require.NoError(t, err)
	t.Cleanup(l.QuitSync)
	return l
}

func TestLoop_RunOnVM(t *testing.T) {
	l := newTestLoop(t)

	assert.False(t, l.HasThreadAccess())
	assert.Panics(t, func() { l.VM() })

	var result int64
	var access bool
	require.NoError(t, RunSync(l, func() {
		access = l.HasThreadAccess()
		v, err := l.VM().RunString(`1 + 2`)
		if assert.NoError(t, err) {
			result = v.ToInteger()
		}
	}))
	assert.True(t, access)
	assert.Equal(t, int64(3), result)

	done := make(chan bool, 1)
	require.True(t, l.RunOnVM(func(vm *goja.Runtime) {
		done <- vm.Get("undefinedGlobal") == nil
	}))
	assert.True(t, <-done)
}

func TestLoop_Current(t *testing.T) {
	l := newTestLoop(t)
	var current Dispatcher
	require.NoError(t, RunSync(l, func() { current = Current() }))
	assert.Same(t, l, current)
}

func TestLoop_Hooks(t *testing.T) {
	var tasks, idleStarts, idleEnds, shutdowns atomic.Int32
	l, err := NewLoop(WithHooks(Hooks{
		OnTaskStarting:      func() { tasks.Add(1) },
		OnIdleWaitStarting:  func() { idleStarts.Add(1) },
		OnIdleWaitCompleted: func() { idleEnds.Add(1) },
		OnShutdownStarting:  func() { shutdowns.Add(1) },
	}))
	require.NoError(t, err)

	require.NoError(t, RunSync(l, func() {}))
	require.NoError(t, RunSync(l, func() {}))
	require.Eventually(t, func() bool { return idleStarts.Load() >= 2 }, 5*time.Second, time.Millisecond)

	l.QuitSync()
	assert.GreaterOrEqual(t, tasks.Load(), int32(2))
	assert.GreaterOrEqual(t, idleEnds.Load(), int32(1))
	assert.Equal(t, int32(1), shutdowns.Load())
	assert.Same(t, JSDispatcherShutdownName, l.ShutdownNotificationName())

	assert.False(t, l.TryPost(func() {}))
	assert.ErrorIs(t, RunSync(l, func() {}), ErrStopped)
}

func TestLoop_QuitSyncRunsPendingTasks(t *testing.T) {
	l, err := NewLoop()
	require.NoError(t, err)

	var ran atomic.Int32
	for range 50 {
		l.Post(func() { ran.Add(1) })
	}
	l.QuitSync()
	assert.Equal(t, int32(50), ran.Load())
	<-l.Done()
}

func TestLoop_ShutdownHookPostsRun(t *testing.T) {
	var l *Loop
	var ran atomic.Int32
	l, err := NewLoop(WithHooks(Hooks{
		OnShutdownStarting: func() {
			l.Post(func() {
				ran.Add(1)
				l.Post(func() { ran.Add(1) })
			})
		},
	}))
	require.NoError(t, err)

	l.QuitSync()
	assert.Equal(t, int32(2), ran.Load())
	assert.False(t, l.TryPost(func() {}))
}

func TestLoop_QuitSyncFromLoop(t *testing.T) {
	var shutdowns, ran atomic.Int32
	var l *Loop
	l, err := NewLoop(WithHooks(Hooks{
		OnShutdownStarting: func() {
			shutdowns.Add(1)
			l.Post(func() { ran.Add(1) })
		},
	}))
	require.NoError(t, err)

	l.Post(func() { l.QuitSync() })
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, int32(1), shutdowns.Load())
	assert.Equal(t, int32(1), ran.Load())
	assert.False(t, l.TryPost(func() {}))
}
