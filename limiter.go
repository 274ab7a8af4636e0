package aiologic

import (
	"context"
	"fmt"
	"sync"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// CapacityLimiter is a semaphore with identity-based ownership: the
// task that borrowed a token is the one expected to return it, which
// is the right contract for "no more than N workers in this role".
// Borrow counts per task are exposed as a read-only snapshot.
//
// A task that already borrows never blocks on a re-acquire: its entry
// is incremented and an available token is consumed, or, when the
// capacity it already holds leaves nothing free, the limiter goes
// into debt for the overcommitted borrow. Releases pay the debt down
// before any token reaches the semaphore, so a parked waiter is only
// admitted once outstanding borrows actually drop below capacity.
type CapacityLimiter struct {
	sem   Semaphore
	total int64

	mu        sync.Mutex
	borrowers map[lowlevel.TaskID]int64
	debt      int64
}

// NewCapacityLimiter returns a limiter with total tokens.
func NewCapacityLimiter(total int64) *CapacityLimiter {
	if total < 1 {
		panic("aiologic: capacity limiter total tokens must be >= 1")
	}
	c := &CapacityLimiter{total: total, borrowers: make(map[lowlevel.TaskID]int64)}
	c.sem.value.Add(total)
	return c
}

// TotalTokens returns the capacity.
func (c *CapacityLimiter) TotalTokens() int64 { return c.total }

// AvailableTokens returns the number of unborrowed tokens.
func (c *CapacityLimiter) AvailableTokens() int64 { return c.sem.Value() }

// Waiting returns the number of parked acquirers.
func (c *CapacityLimiter) Waiting() int { return c.sem.Waiting() }

// Borrowers returns a snapshot of task identity → borrow count.
func (c *CapacityLimiter) Borrowers() map[lowlevel.TaskID]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[lowlevel.TaskID]int64, len(c.borrowers))
	for k, v := range c.borrowers {
		out[k] = v
	}
	return out
}

func (c *CapacityLimiter) borrow(id lowlevel.TaskID, n int64) {
	c.mu.Lock()
	c.borrowers[id] += n
	c.mu.Unlock()
}

// reborrow is the existing-borrower fast path: increment the entry and
// consume available tokens without ever enqueuing, going into debt for
// whatever the counter cannot cover. Returns false when the task holds
// nothing, sending the caller down the ordinary semaphore path.
func (c *CapacityLimiter) reborrow(id lowlevel.TaskID, n int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.borrowers[id] == 0 {
		return false
	}
	c.borrowers[id] += n
	for i := int64(0); i < n; i++ {
		if !c.sem.TryAcquire() {
			c.debt++
		}
	}
	return true
}

// releaseN returns n of the calling task's tokens, paying down any
// overcommit debt before freeing real tokens to waiting acquirers.
func (c *CapacityLimiter) releaseN(id lowlevel.TaskID, n int64) {
	c.mu.Lock()
	have := c.borrowers[id]
	if have < n {
		c.mu.Unlock()
		panic("aiologic: capacity limiter released by non-borrower")
	}
	if have == n {
		delete(c.borrowers, id)
	} else {
		c.borrowers[id] = have - n
	}
	free := n
	if c.debt > 0 {
		pay := min(free, c.debt)
		c.debt -= pay
		free -= pay
	}
	c.mu.Unlock()
	if free > 0 {
		c.sem.ReleaseN(free)
	}
}

// TryAcquire borrows one token without blocking.
func (c *CapacityLimiter) TryAcquire() bool {
	id := lowlevel.CurrentTaskID()
	if c.reborrow(id, 1) {
		return true
	}
	if !c.sem.TryAcquire() {
		return false
	}
	c.borrow(id, 1)
	return true
}

// Acquire borrows one token for the calling task, blocking until one
// is free or ctx is done. A task that already borrows takes the
// fast path: its entry is incremented without queuing, so a borrower
// can never deadlock behind capacity it holds itself.
func (c *CapacityLimiter) Acquire(ctx context.Context) error {
	id := lowlevel.CurrentTaskID()
	if c.reborrow(id, 1) {
		return nil
	}
	if err := c.sem.Acquire(ctx); err != nil {
		return err
	}
	c.borrow(id, 1)
	return nil
}

// Release returns one token. Releasing from a task with no borrowed
// tokens is a programmer error and panics.
func (c *CapacityLimiter) Release() {
	c.releaseN(lowlevel.CurrentTaskID(), 1)
}

// With borrows a token around fn.
func (c *CapacityLimiter) With(ctx context.Context, fn func() error) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	defer c.Release()
	return fn()
}

// String implements fmt.Stringer.
func (c *CapacityLimiter) String() string {
	return fmt.Sprintf("aiologic.CapacityLimiter(available=%d/%d, waiting=%d)",
		c.AvailableTokens(), c.total, c.Waiting())
}

// RCapacityLimiter is a capacity limiter whose acquire can reserve
// several tokens for the calling task in one shot; releases must match
// the counts borrowed.
type RCapacityLimiter struct {
	CapacityLimiter
}

// NewRCapacityLimiter returns a reentrant capacity limiter.
func NewRCapacityLimiter(total int64) *RCapacityLimiter {
	if total < 1 {
		panic("aiologic: capacity limiter total tokens must be >= 1")
	}
	r := &RCapacityLimiter{}
	r.total = total
	r.borrowers = make(map[lowlevel.TaskID]int64)
	r.sem.value.Add(total)
	return r
}

// AcquireN borrows n tokens for the calling task in one shot. An
// existing borrower takes the same non-blocking fast path as Acquire.
func (r *RCapacityLimiter) AcquireN(ctx context.Context, n int64) error {
	if n < 1 {
		panic("aiologic: capacity limiter acquire count must be >= 1")
	}
	id := lowlevel.CurrentTaskID()
	if r.reborrow(id, n) {
		return nil
	}
	if err := r.sem.AcquireN(ctx, n); err != nil {
		return err
	}
	r.borrow(id, n)
	return nil
}

// ReleaseN returns n of the calling task's tokens; returning more than
// borrowed panics.
func (r *RCapacityLimiter) ReleaseN(n int64) {
	if n < 1 {
		panic("aiologic: capacity limiter release count must be >= 1")
	}
	r.releaseN(lowlevel.CurrentTaskID(), n)
}

// String implements fmt.Stringer.
func (r *RCapacityLimiter) String() string {
	return fmt.Sprintf("aiologic.RCapacityLimiter(available=%d/%d, waiting=%d)",
		r.AvailableTokens(), r.total, r.Waiting())
}
