// Package testutil holds helpers for tests that drive a host from Go:
// starting one with a given set of modules, and waiting for work queued on
// its dispatchers to become visible.
package testutil

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultTimeout bounds every wait in this package.
	DefaultTimeout = 5 * time.Second
	// DefaultInterval is the pause between checks.
	DefaultInterval = 5 * time.Millisecond
)

// Poll calls condition until it returns true, timeout elapses or ctx is done.
func Poll(ctx context.Context, condition func() bool, timeout, interval time.Duration) error {
	_, err := WaitForState(ctx, condition, func(ok bool) bool { return ok }, timeout, interval)
	return err
}

// WaitForState calls getter until predicate accepts its result, returning
// that result. On timeout or cancellation the last observed value is
// returned alongside the error.
func WaitForState[T any](ctx context.Context, getter func() T, predicate func(T) bool, timeout, interval time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		state := getter()
		if predicate(state) {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-timer.C:
			return state, fmt.Errorf("testutil: condition not met after %v", timeout)
		case <-ticker.C:
		}
	}
}
