package loop

import (
	"errors"
	"fmt"
)

var (
	// ErrTerminated is returned by Submit and Go once the loop has
	// begun shutting down.
	ErrTerminated = errors.New("loop: terminated")

	// ErrOverloaded is returned by Submit when the ingress buffer is
	// full; the caller decides whether to retry, drop, or block.
	ErrOverloaded = errors.New("loop: ingress overloaded")
)

// PanicError wraps a value recovered from a panicking task so the
// loop can keep running while the panic stays observable through the
// OnPanic hook.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("loop: task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is itself an error, enabling
// errors.Is and errors.As through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
