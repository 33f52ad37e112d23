package goroutineid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	require.Equal(t, ID(123), parse([]byte("goroutine 123 [running]:\n")))
}

func TestParse_Truncated(t *testing.T) {
	require.Equal(t, ID(98765), parse([]byte("goroutine 98765")))
}

func TestParse_Invalid(t *testing.T) {
	require.Equal(t, ID(0), parse([]byte("something else\n")))
	require.Equal(t, ID(0), parse(nil))
	require.Equal(t, ID(0), parse([]byte("goroutine ")))
}

func TestGetReturnsNonZero(t *testing.T) {
	require.Greater(t, Get(), ID(0))
}

func TestGetDistinguishesGoroutines(t *testing.T) {
	self := Get()
	require.True(t, Is(self))
	require.False(t, Is(0))

	var other ID
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = Get()
	}()
	wg.Wait()

	require.NotEqual(t, self, other)
	require.False(t, Is(other))
}
