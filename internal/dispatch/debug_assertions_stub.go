//go:build !debug

// Package dispatch debug_assertions_stub provides no-op stubs for the wait
// cycle detection compiled with the debug tag.
package dispatch

// debugEnterWait is a no-op in release builds.
func debugEnterWait(_, _ Dispatcher) {}

// debugExitWait is a no-op in release builds.
func debugExitWait(_ Dispatcher) {}
