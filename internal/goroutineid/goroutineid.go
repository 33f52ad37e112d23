// Package goroutineid identifies the calling goroutine. Dispatchers use it to
// answer "does the caller have thread access" without cooperation from the
// task being run.
package goroutineid

import (
	"runtime"
	"sync"
)

// ID is a goroutine identifier. The zero value never identifies a goroutine.
type ID int64

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Get returns the ID of the calling goroutine, or 0 if the runtime stack
// header could not be parsed.
func Get() ID {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	// Only the header line is needed: "goroutine N [running]:".
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// Is reports whether the calling goroutine is id. It is false for the zero ID.
func Is(id ID) bool {
	return id != 0 && Get() == id
}

var prefix = [...]byte{'g', 'o', 'r', 'o', 'u', 't', 'i', 'n', 'e', ' '}

// parse extracts the goroutine number from a runtime.Stack header without
// allocating.
func parse(stack []byte) ID {
	if len(stack) < len(prefix)+1 {
		return 0
	}
	for i := range prefix {
		if stack[i] != prefix[i] {
			return 0
		}
	}
	var id ID
	for _, b := range stack[len(prefix):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + ID(b-'0')
	}
	return id
}
