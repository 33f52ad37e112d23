package dispatch

import (
	"fmt"
	"runtime/debug"
)

// TaskPanicError wraps a value recovered from a panicking task.
type TaskPanicError struct {
	Dispatcher string
	Value      any
	Stack      []byte
}

func newTaskPanicError(dispatcher string, value any) *TaskPanicError {
	return &TaskPanicError{Dispatcher: dispatcher, Value: value, Stack: debug.Stack()}
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("dispatch: task on %s panicked: %v", e.Dispatcher, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
