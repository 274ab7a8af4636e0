package lowlevel

import (
	"context"
	"time"
)

// ParkOutcome is the result of a Park call.
type ParkOutcome int8

const (
	// ParkWoken means Wake was called.
	ParkWoken ParkOutcome = iota
	// ParkTimedOut means the deadline elapsed first.
	ParkTimedOut
	// ParkCancelled means the context was cancelled first.
	ParkCancelled
)

// Waiter is a one-shot rendezvous between a single sleeping side and a
// single waking side. It carries no state of its own; the Event that
// owns it interprets the outcome. Wake may be called before Park: the
// wake is latched and the subsequent Park returns immediately.
type Waiter interface {
	// Park suspends the calling task until Wake is called, the
	// deadline elapses (zero deadline means none), or ctx is
	// cancelled. It may be called at most once per Waiter.
	Park(ctx context.Context, deadline time.Time) ParkOutcome

	// Wake unparks the sleeping side. Safe to call from any
	// goroutine or runtime, any number of times; only the first
	// call has an effect.
	Wake()
}

// chanWaiter parks a goroutine on a latched buffered channel. This is
// the waiter for the default goroutine runtime; cooperative runtimes
// wrap it to marshal the wake through their own scheduler.
type chanWaiter struct {
	ch chan struct{}
}

// NewWaiter returns a goroutine-parking waiter.
func NewWaiter() Waiter {
	return &chanWaiter{ch: make(chan struct{}, 1)}
}

func (w *chanWaiter) Wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *chanWaiter) Park(ctx context.Context, deadline time.Time) ParkOutcome {
	// Latched wake: no suspension needed.
	select {
	case <-w.ch:
		return ParkWoken
	default:
	}
	done := ctx.Done()
	if deadline.IsZero() && done == nil {
		<-w.ch
		return ParkWoken
	}
	var timeC <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeC = t.C
	}
	select {
	case <-w.ch:
		return ParkWoken
	case <-timeC:
		return ParkTimedOut
	case <-done:
		return ParkCancelled
	}
}
