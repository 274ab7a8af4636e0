package aiologic

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// Event is a one-time broadcast flag: Set transitions it permanently
// and wakes every waiter. The zero value is an unset event.
type Event struct {
	set atomic.Bool
	wq  lowlevel.WaitQueue
}

// NewEvent returns an unset one-time event.
func NewEvent() *Event { return &Event{} }

// IsSet reports whether the event was set.
func (ev *Event) IsSet() bool { return ev.set.Load() }

// Set sets the event and wakes all waiters. Idempotent; returns true
// only for the first effective call.
func (ev *Event) Set() bool {
	if !ev.set.CompareAndSwap(false, true) {
		return false
	}
	broadcast(&ev.wq)
	return true
}

// Wait blocks until the event is set or ctx is done.
func (ev *Event) Wait(ctx context.Context) error {
	rt := lowlevel.CurrentRuntime()
	if ev.set.Load() {
		lowlevel.Checkpoint(rt)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := lowlevel.NewEventFor(rt)
	ev.wq.Append(e)
	if ev.set.Load() {
		// Set may have drained before our entry landed.
		if e.Cancel() {
			ev.wq.Remove(e)
		}
		return nil
	}
	if e.Wait(ctx, time.Time{}) {
		return nil
	}
	ev.wq.Remove(e)
	return ctx.Err()
}

// String implements fmt.Stringer.
func (ev *Event) String() string {
	status := "unset"
	if ev.IsSet() {
		status = "set"
	}
	return fmt.Sprintf("aiologic.Event(%s, waiting=%d)", status, ev.wq.Len())
}

// broadcast wakes every currently queued waiter.
func broadcast(q *lowlevel.WaitQueue) {
	for {
		e := q.Peek()
		if e == nil {
			return
		}
		if e.Set() {
			q.Consume(e)
		}
	}
}

// REvent is a resettable event. The state packs a monotonically
// increasing generation with the set bit; a waiter captures the
// generation on entry and a set only resolves waiters whose captured
// generation precedes it, so a set+clear pair between two waits never
// spuriously wakes a later waiter.
type REvent struct {
	// state = generation<<1 | set
	state atomic.Uint64
	wq    lowlevel.WaitQueue
}

// NewREvent returns an unset resettable event.
func NewREvent() *REvent { return &REvent{} }

// IsSet reports whether the event is currently set.
func (ev *REvent) IsSet() bool { return ev.state.Load()&1 == 1 }

// generation of the current state word.
func (ev *REvent) generation() uint64 { return ev.state.Load() >> 1 }

// Set sets the event, bumping the generation, and wakes every waiter
// that enqueued before this set. Returns true only if the event was
// unset.
func (ev *REvent) Set() bool {
	var gen uint64
	for {
		s := ev.state.Load()
		if s&1 == 1 {
			return false
		}
		gen = (s >> 1) + 1
		if ev.state.CompareAndSwap(s, gen<<1|1) {
			break
		}
	}
	for {
		e := ev.wq.Peek()
		if e == nil {
			return true
		}
		if e.Gen >= gen {
			// Enqueued after this set (necessarily after a
			// subsequent clear); leave it for the next set.
			return true
		}
		if e.Set() {
			ev.wq.Consume(e)
		}
	}
}

// Clear unsets the event, keeping the generation. Returns true only if
// the event was set.
func (ev *REvent) Clear() bool {
	for {
		s := ev.state.Load()
		if s&1 == 0 {
			return false
		}
		if ev.state.CompareAndSwap(s, s&^1) {
			return true
		}
	}
}

// Wait blocks until a set that happens at or after the wait begins, or
// ctx is done. If the event is already set it returns immediately.
func (ev *REvent) Wait(ctx context.Context) error {
	rt := lowlevel.CurrentRuntime()
	s := ev.state.Load()
	if s&1 == 1 {
		lowlevel.Checkpoint(rt)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := lowlevel.NewEventFor(rt)
	e.Gen = s >> 1
	ev.wq.Append(e)
	if ev.generation() > e.Gen {
		// A set landed while we enqueued; its drain may have missed
		// our entry.
		if e.Cancel() {
			ev.wq.Remove(e)
		}
		return nil
	}
	if e.Wait(ctx, time.Time{}) {
		return nil
	}
	ev.wq.Remove(e)
	return ctx.Err()
}

// String implements fmt.Stringer.
func (ev *REvent) String() string {
	status := "unset"
	if ev.IsSet() {
		status = "set"
	}
	return fmt.Sprintf("aiologic.REvent(%s, generation=%d, waiting=%d)",
		status, ev.generation(), ev.wq.Len())
}

// CountdownEvent is set while its counter is zero. Up increments the
// counter, Down decrements it; the decrement that reaches zero wakes
// every waiter.
type CountdownEvent struct {
	value atomic.Int64
	wq    lowlevel.WaitQueue
}

// NewCountdownEvent returns a countdown event with the given initial
// counter.
func NewCountdownEvent(initial int64) *CountdownEvent {
	if initial < 0 {
		panic("aiologic: negative countdown value")
	}
	c := &CountdownEvent{}
	c.value.Store(initial)
	return c
}

// Value returns the current counter.
func (c *CountdownEvent) Value() int64 { return c.value.Load() }

// IsSet reports whether the counter is zero.
func (c *CountdownEvent) IsSet() bool { return c.value.Load() == 0 }

// Up adds n to the counter. Never blocks.
func (c *CountdownEvent) Up(n int64) {
	if n < 1 {
		panic("aiologic: countdown up amount must be >= 1")
	}
	c.value.Add(n)
}

// Down subtracts n from the counter; driving it below zero panics.
// The call that reaches zero broadcasts.
func (c *CountdownEvent) Down(n int64) {
	if n < 1 {
		panic("aiologic: countdown down amount must be >= 1")
	}
	v := c.value.Add(-n)
	if v < 0 {
		panic("aiologic: countdown driven below zero")
	}
	if v == 0 {
		broadcast(&c.wq)
	}
}

// Clear resets the counter to zero and broadcasts.
func (c *CountdownEvent) Clear() {
	c.value.Store(0)
	broadcast(&c.wq)
}

// Wait blocks until the counter is zero or ctx is done.
func (c *CountdownEvent) Wait(ctx context.Context) error {
	rt := lowlevel.CurrentRuntime()
	if c.value.Load() == 0 {
		lowlevel.Checkpoint(rt)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := lowlevel.NewEventFor(rt)
	c.wq.Append(e)
	if c.value.Load() == 0 {
		if e.Cancel() {
			c.wq.Remove(e)
		}
		return nil
	}
	if e.Wait(ctx, time.Time{}) {
		return nil
	}
	c.wq.Remove(e)
	return ctx.Err()
}

// String implements fmt.Stringer.
func (c *CountdownEvent) String() string {
	return fmt.Sprintf("aiologic.CountdownEvent(value=%d, waiting=%d)",
		c.Value(), c.wq.Len())
}
