package aiologic

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// BinarySemaphore is a semaphore whose value is a single bit: acquire
// flips 1→0, release flips 0→1. Contended releases hand the token
// directly to the queue head, so the semaphore is never observably
// free while waiters exist.
//
// It also carries the repark queue consumed by condition variables:
// entries placed there by Cond.Notify are served ahead of ordinary
// waiters on release, which is what transfers lock ownership to a
// notified waiter without an open re-acquire race.
type BinarySemaphore struct {
	state    atomic.Uint32 // 1 = available
	wq       lowlevel.WaitQueue
	reparked lowlevel.WaitQueue
}

// NewBinarySemaphore returns a binary semaphore; available selects the
// initial state.
func NewBinarySemaphore(available bool) *BinarySemaphore {
	b := &BinarySemaphore{}
	if available {
		b.state.Store(1)
	}
	return b
}

// Available reports whether the token is free.
func (b *BinarySemaphore) Available() bool { return b.state.Load() == 1 }

// Waiting returns the number of parked acquirers, including reparked
// condition-variable waiters.
func (b *BinarySemaphore) Waiting() int { return b.wq.Len() + b.reparked.Len() }

// TryAcquire takes the token without blocking or yielding.
func (b *BinarySemaphore) TryAcquire() bool {
	return b.wq.Len() == 0 && b.reparked.Len() == 0 && b.state.CompareAndSwap(1, 0)
}

// Acquire takes the token, blocking until it is handed over or ctx is
// done.
func (b *BinarySemaphore) Acquire(ctx context.Context) error {
	rt := lowlevel.CurrentRuntime()
	if b.TryAcquire() {
		lowlevel.Checkpoint(rt)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := lowlevel.NewEventFor(rt)
	e.Task = rt.CurrentTaskID()
	b.wq.Append(e)
	b.drain()
	if e.Wait(ctx, time.Time{}) {
		return nil
	}
	b.wq.Remove(e)
	b.drain()
	return ctx.Err()
}

// Release returns the token, preferring a direct handoff to the first
// reparked waiter, then to the first ordinary waiter. Releasing an
// already-available semaphore is a no-op.
func (b *BinarySemaphore) Release() {
	if b.handNext() {
		return
	}
	b.state.Store(1)
	b.drain()
}

// repark appends a notified condition-variable waiter; the next
// Release hands the token to it directly. The event keeps its original
// arrival ticket. A cancellation that lands while the entry is between
// queues cannot see a holder, so the tombstone is accounted here.
func (b *BinarySemaphore) repark(e *lowlevel.WaiterEvent) {
	b.reparked.Append(e)
	if e.Cancelled() {
		b.reparked.Remove(e)
	}
}

// handNext transfers the (held) token to the next waiter. Returns
// false when no waiter could be woken.
func (b *BinarySemaphore) handNext() bool {
	for {
		e := b.reparked.Peek()
		if e == nil {
			break
		}
		if e.Set() {
			b.reparked.Consume(e)
			return true
		}
	}
	for {
		e := b.wq.Peek()
		if e == nil {
			return false
		}
		if e.Set() {
			b.wq.Consume(e)
			return true
		}
	}
}

// drain resolves the release-versus-enqueue race: whenever the token
// is free and waiters exist, take the token back and hand it over.
func (b *BinarySemaphore) drain() {
	for {
		if b.wq.Len() == 0 && b.reparked.Len() == 0 {
			return
		}
		if !b.state.CompareAndSwap(1, 0) {
			return
		}
		if b.handNext() {
			return
		}
		b.state.Store(1)
	}
}

// String implements fmt.Stringer.
func (b *BinarySemaphore) String() string {
	status := "locked"
	if b.Available() {
		status = "unlocked"
	}
	return fmt.Sprintf("aiologic.BinarySemaphore(%s, waiting=%d)", status, b.Waiting())
}
