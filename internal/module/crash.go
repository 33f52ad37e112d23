package module

import "fmt"

// InvariantError is the panic value raised for programmer errors: duplicate
// registrations, missing dispatchers, members declared twice. They indicate
// a broken host setup.
type InvariantError struct {
	msg string
}

func (e *InvariantError) Error() string { return "module: " + e.msg }

func crash(format string, args ...any) {
	panic(&InvariantError{msg: fmt.Sprintf(format, args...)})
}
