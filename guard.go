package aiologic

import (
	"fmt"
	"sync/atomic"
)

// ResourceGuard is a one-slot claim: Enter marks the resource in use
// via a single CAS and a concurrent attempt fails with
// ErrBusyResource. It never blocks and is signal-safe, which makes it
// the right declaration for single-consumer resources.
type ResourceGuard struct {
	busy atomic.Uint32
}

// NewResourceGuard returns an idle guard. The zero value is also
// ready to use.
func NewResourceGuard() *ResourceGuard { return &ResourceGuard{} }

// Busy reports whether the guard is held.
func (g *ResourceGuard) Busy() bool { return g.busy.Load() == 1 }

// Enter claims the resource, failing with ErrBusyResource when it is
// already claimed.
func (g *ResourceGuard) Enter() error {
	if !g.busy.CompareAndSwap(0, 1) {
		return ErrBusyResource
	}
	return nil
}

// Exit releases the claim. Exiting an idle guard is a programmer
// error and panics.
func (g *ResourceGuard) Exit() {
	if !g.busy.CompareAndSwap(1, 0) {
		panic("aiologic: exit of idle resource guard")
	}
}

// With claims the resource around fn.
func (g *ResourceGuard) With(fn func() error) error {
	if err := g.Enter(); err != nil {
		return err
	}
	defer g.Exit()
	return fn()
}

// String implements fmt.Stringer.
func (g *ResourceGuard) String() string {
	status := "idle"
	if g.Busy() {
		status = "busy"
	}
	return fmt.Sprintf("aiologic.ResourceGuard(%s)", status)
}

// Flag is a set-once container: the first Set wins and later calls
// leave the value untouched. Get never blocks, so the flag is usable
// from signal handlers and finalizers.
type Flag[T any] struct {
	p atomic.Pointer[T]
}

// NewFlag returns an unset flag. The zero value is also ready to use.
func NewFlag[T any]() *Flag[T] { return &Flag[T]{} }

// IsSet reports whether the flag holds a value.
func (f *Flag[T]) IsSet() bool { return f.p.Load() != nil }

// Set stores v if the flag is still unset; returns true only for the
// winning call.
func (f *Flag[T]) Set(v T) bool {
	return f.p.CompareAndSwap(nil, &v)
}

// Get returns the stored value, or def when unset.
func (f *Flag[T]) Get(def T) T {
	if p := f.p.Load(); p != nil {
		return *p
	}
	return def
}

// String implements fmt.Stringer.
func (f *Flag[T]) String() string {
	if p := f.p.Load(); p != nil {
		return fmt.Sprintf("aiologic.Flag(%v)", *p)
	}
	return "aiologic.Flag(unset)"
}
