package aiologic

import (
	"context"
	"fmt"
	"time"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// Semaphore is a counting semaphore. The counter is a single atomic
// integer; contended acquires park on a lock-free wait queue and
// releases hand tokens directly to the queue head, so a release slot
// is never lost to a racing cancellation.
type Semaphore struct {
	value lowlevel.Counter
	wq    lowlevel.WaitQueue

	// max bounds the counter when positive (BoundedSemaphore); the
	// check rides the counter CAS so racing releases cannot both
	// pass it.
	max int64
}

// NewSemaphore returns a semaphore holding initial tokens.
func NewSemaphore(initial int64) *Semaphore {
	if initial < 0 {
		panic("aiologic: negative initial semaphore value")
	}
	s := &Semaphore{}
	s.value.Add(initial)
	return s
}

// Value returns the current token count.
func (s *Semaphore) Value() int64 { return s.value.Load() }

// Waiting returns the number of parked acquirers.
func (s *Semaphore) Waiting() int { return s.wq.Len() }

// TryAcquire takes one token without blocking.
func (s *Semaphore) TryAcquire() bool { return s.TryAcquireN(1) }

// TryAcquireN takes n tokens without blocking and without yielding.
func (s *Semaphore) TryAcquireN(n int64) bool {
	if n < 1 {
		panic("aiologic: semaphore acquire count must be >= 1")
	}
	return s.value.TryTake(n)
}

// Acquire takes one token, blocking until one is available or ctx is
// done.
func (s *Semaphore) Acquire(ctx context.Context) error { return s.AcquireN(ctx, 1) }

// AcquireN takes n tokens. Waiters are served in arrival order; a
// waiter asking for more tokens than are free blocks later waiters
// rather than being barged past.
func (s *Semaphore) AcquireN(ctx context.Context, n int64) error {
	if n < 1 {
		panic("aiologic: semaphore acquire count must be >= 1")
	}
	rt := lowlevel.CurrentRuntime()
	if s.wq.Len() == 0 && s.value.TryTake(n) {
		lowlevel.Checkpoint(rt)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := lowlevel.NewEventFor(rt)
	e.Count = n
	s.wq.Append(e)
	// Re-examine the counter: a release may have run between the
	// failed fast path and the append, seeing an empty queue.
	s.drain()
	if e.Wait(ctx, time.Time{}) {
		return nil
	}
	s.wq.Remove(e)
	// Our cancelled entry may have been blocking smaller requests
	// behind it.
	s.drain()
	return ctx.Err()
}

// Release returns one token, waking the queue head if it can now be
// satisfied.
func (s *Semaphore) Release() { s.ReleaseN(1) }

// ReleaseN returns n tokens. Tokens are handed directly to waiting
// acquirers in FIFO order; only the remainder reaches the counter.
func (s *Semaphore) ReleaseN(n int64) {
	if n < 1 {
		panic("aiologic: semaphore release count must be >= 1")
	}
	tokens := n
	for tokens > 0 {
		e := s.wq.Peek()
		if e == nil || e.Count > tokens {
			break
		}
		if e.Set() {
			s.wq.Consume(e)
			tokens -= e.Count
		}
	}
	if tokens > 0 {
		s.credit(tokens)
		s.drain()
	}
}

// credit lands released tokens on the counter, enforcing the bound
// (when one is set) atomically with the increment.
func (s *Semaphore) credit(n int64) {
	if s.max > 0 {
		if !s.value.AddCapped(n, s.max) {
			panic("aiologic: bounded semaphore released too many times")
		}
		return
	}
	s.value.Add(n)
}

// drain moves counter tokens to queued waiters in FIFO order. Called
// whenever the counter grows while the queue may be non-empty, and
// after an enqueue that raced a release.
func (s *Semaphore) drain() {
	for {
		e := s.wq.Peek()
		if e == nil {
			return
		}
		n := e.Count
		if !s.value.TryTake(n) {
			return
		}
		if e.Set() {
			s.wq.Consume(e)
			continue
		}
		// The head resolved under us; give back the tokens we just
		// took. A plain add suffices: they were below the bound a
		// moment ago and never left the engine's hands.
		s.value.Add(n)
	}
}

// String implements fmt.Stringer.
func (s *Semaphore) String() string {
	return fmt.Sprintf("aiologic.Semaphore(value=%d, waiting=%d)", s.Value(), s.Waiting())
}

// BoundedSemaphore is a counting semaphore that rejects releases
// beyond its maximum value.
type BoundedSemaphore struct {
	sem Semaphore
	max int64
}

// NewBoundedSemaphore returns a bounded semaphore with the given
// initial and maximum values. With max 1 it behaves as a bounded
// binary semaphore.
func NewBoundedSemaphore(initial, max int64) *BoundedSemaphore {
	if max < 1 {
		panic("aiologic: bounded semaphore max value must be >= 1")
	}
	if initial < 0 || initial > max {
		panic("aiologic: bounded semaphore initial value out of range")
	}
	b := &BoundedSemaphore{max: max}
	b.sem.max = max
	b.sem.value.Add(initial)
	return b
}

// Value returns the current token count.
func (b *BoundedSemaphore) Value() int64 { return b.sem.Value() }

// MaxValue returns the bound.
func (b *BoundedSemaphore) MaxValue() int64 { return b.max }

// Waiting returns the number of parked acquirers.
func (b *BoundedSemaphore) Waiting() int { return b.sem.Waiting() }

// TryAcquire takes one token without blocking.
func (b *BoundedSemaphore) TryAcquire() bool { return b.sem.TryAcquire() }

// TryAcquireN takes n tokens without blocking.
func (b *BoundedSemaphore) TryAcquireN(n int64) bool { return b.sem.TryAcquireN(n) }

// Acquire takes one token, blocking until available or ctx is done.
func (b *BoundedSemaphore) Acquire(ctx context.Context) error { return b.sem.Acquire(ctx) }

// AcquireN takes n tokens in arrival order.
func (b *BoundedSemaphore) AcquireN(ctx context.Context, n int64) error {
	return b.sem.AcquireN(ctx, n)
}

// Release returns one token. Releasing past the maximum value is a
// programmer error and panics.
func (b *BoundedSemaphore) Release() { b.ReleaseN(1) }

// ReleaseN returns n tokens, enforcing the bound. The check is a CAS
// against the counter, so concurrent releases cannot both slip past
// it. Tokens handed directly to waiters represent holders and do not
// count against the bound; only what lands on the counter is checked.
func (b *BoundedSemaphore) ReleaseN(n int64) {
	if n < 1 {
		panic("aiologic: semaphore release count must be >= 1")
	}
	b.sem.ReleaseN(n)
}

// String implements fmt.Stringer.
func (b *BoundedSemaphore) String() string {
	return fmt.Sprintf("aiologic.BoundedSemaphore(value=%d/%d, waiting=%d)",
		b.Value(), b.max, b.Waiting())
}
