package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_DestroyedOnceAfterAllReleases(t *testing.T) {
	var destroyed int
	h := New("value", func(string) { destroyed++ })
	require.Equal(t, int32(1), h.Count())

	clones := make([]Handle[string], 10)
	for i := range clones {
		clones[i] = h.Clone()
	}
	require.Equal(t, int32(11), h.Count())
	assert.Equal(t, "value", clones[3].Get())
	assert.True(t, clones[3].Same(h))

	for i := range clones {
		clones[i].Release()
		assert.True(t, clones[i].IsNil())
	}
	assert.Equal(t, 0, destroyed)

	h.Release()
	assert.Equal(t, 1, destroyed)
	assert.True(t, h.IsNil())

	// releasing a nil handle is a no-op
	h.Release()
	assert.Equal(t, 1, destroyed)
}

func TestHandle_ConcurrentCloneRelease(t *testing.T) {
	var destroyed int
	var mu sync.Mutex
	h := New(42, func(int) {
		mu.Lock()
		destroyed++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		c := h.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				inner := c.Clone()
				_ = inner.Get()
				inner.Release()
			}
			c.Release()
		}()
	}
	wg.Wait()
	h.Release()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, destroyed)
}

func TestHandle_Move(t *testing.T) {
	h := New(1, nil)
	moved := h.Move()
	assert.True(t, h.IsNil())
	assert.Equal(t, int32(1), moved.Count())
	moved.Release()
}

func TestHandle_UseAfterDestroyPanics(t *testing.T) {
	h := New(1, nil)
	alias := h
	h.Release()
	assert.Panics(t, func() { alias.Get() })
	assert.Panics(t, func() { Handle[int]{}.Get() })
}

func TestRefCount_ReleaseBelowZeroPanics(t *testing.T) {
	var r RefCount
	r.Init()
	require.True(t, r.Release())
	assert.Panics(t, func() { r.Release() })
}

type destroyable struct{ destroyed int }

func (d *destroyable) Destroy() { d.destroyed++ }

func TestTable_RoundTrip(t *testing.T) {
	tbl := NewTable()
	obj := &destroyable{}

	var id ID
	require.Equal(t, StatusOK, tbl.FromObject(obj, &id))
	require.NotZero(t, id)

	var got *destroyable
	require.Equal(t, StatusOK, ToObject(tbl, id, &got))
	assert.Same(t, obj, got)

	var wrong *RefCount
	assert.Equal(t, StatusError, ToObject(tbl, id, &wrong))

	require.Equal(t, StatusOK, tbl.AddRef(id))
	require.Equal(t, StatusOK, tbl.Release(id))
	assert.Equal(t, 0, obj.destroyed)
	require.Equal(t, StatusOK, tbl.Release(id))
	assert.Equal(t, 1, obj.destroyed)
	assert.Equal(t, 0, tbl.Len())

	assert.Equal(t, StatusError, tbl.Release(id))
	assert.Equal(t, StatusError, tbl.AddRef(id))
	assert.Equal(t, StatusError, tbl.FromObject(nil, &id))
}
