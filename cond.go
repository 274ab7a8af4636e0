package aiologic

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// Cond is a condition variable. It binds to a Lock (the usual mode),
// to a raw BinarySemaphore, or to nothing at all, in which case it
// degenerates into a pure parking lot.
//
// Notify does not race woken waiters against new lock contenders: a
// notified waiter is reparked onto the bound lock's handoff queue, and
// the next unlock transfers ownership to it directly. Every wait
// therefore performs exactly one checkpoint on the success path (two
// when cancelled) and wakeups happen in strict enqueue order.
type Cond struct {
	lock *Lock
	bsem *BinarySemaphore
	wq   lowlevel.WaitQueue
}

// NewCond returns a condition variable bound to l.
func NewCond(l *Lock) *Cond { return &Cond{lock: l} }

// NewSemCond returns a condition variable bound to a raw binary
// semaphore.
func NewSemCond(b *BinarySemaphore) *Cond { return &Cond{bsem: b} }

// NewParkingLot returns a lockless condition variable: Wait parks
// unconditionally and Notify wakes directly.
func NewParkingLot() *Cond { return &Cond{} }

// Waiting returns the number of parked waiters.
func (c *Cond) Waiting() int { return c.wq.Len() }

func (c *Cond) sem() *BinarySemaphore {
	switch {
	case c.lock != nil:
		return &c.lock.sem
	case c.bsem != nil:
		return c.bsem
	}
	return nil
}

func (c *Cond) checkOwned() {
	switch {
	case c.lock != nil:
		if !c.lock.OwnedByCurrent() {
			panic("aiologic: condition used without holding its lock")
		}
	case c.bsem != nil:
		if c.bsem.Available() {
			panic("aiologic: condition used without holding its semaphore")
		}
	}
}

func (c *Cond) release() {
	switch {
	case c.lock != nil:
		c.lock.Unlock()
	case c.bsem != nil:
		c.bsem.Release()
	}
}

// reacquire restores the lock on the cancellation path, shielded from
// further cancellation so the caller always returns holding it.
func (c *Cond) reacquire(ctx context.Context) {
	s := c.sem()
	if s == nil {
		return
	}
	sctx := lowlevel.CurrentRuntime().Shield(ctx)
	if c.lock != nil {
		_ = c.lock.Lock(sctx)
		return
	}
	_ = s.Acquire(sctx)
}

// Wait releases the bound lock, parks until notified, and returns
// holding the lock again — on the success path the lock arrives with
// the wakeup itself, and on cancellation it is re-acquired under a
// cancellation shield before the error is surfaced.
func (c *Cond) Wait(ctx context.Context) error {
	return c.wait(ctx, nil)
}

func (c *Cond) wait(ctx context.Context, pred func() bool) error {
	c.checkOwned()
	rt := lowlevel.CurrentRuntime()
	e := lowlevel.NewEventFor(rt)
	e.Task = rt.CurrentTaskID()
	if pred != nil {
		e.Data = pred
	}
	c.wq.Append(e)
	c.release()
	if e.Wait(ctx, time.Time{}) {
		if c.lock != nil {
			// Ownership was handed over before the wake; record it.
			id := e.Task
			c.lock.owner.Store(&id)
		}
		return nil
	}
	if h := e.Holder(); h != nil {
		h.Remove(e)
	}
	c.reacquire(ctx)
	return ctx.Err()
}

// WaitFor blocks until pred is true, re-checking around each wait.
// The predicate is delegated: the notifier evaluates it with the lock
// held and only wakes this waiter when it is satisfied, which keeps
// the number of context switches at one per successful wait.
func (c *Cond) WaitFor(ctx context.Context, pred func() bool) error {
	if pred == nil {
		panic("aiologic: nil condition predicate")
	}
	for !pred() {
		if err := c.wait(ctx, pred); err != nil {
			return err
		}
	}
	return nil
}

// Notify wakes up to n waiters in enqueue order. Under a bound lock
// the waiters are not woken here: they are reparked onto the lock, and
// the unlock that follows hands ownership to the first of them. A
// waiter carrying a delegated predicate is only taken when the
// predicate holds; an unsatisfied head predicate stops the scan to
// preserve FIFO order. Returns the number of waiters notified.
func (c *Cond) Notify(n int) int {
	c.checkOwned()
	s := c.sem()
	woken := 0
	for woken < n {
		e := c.wq.Peek()
		if e == nil {
			break
		}
		if pred, ok := e.Data.(func() bool); ok {
			if !pred() {
				break
			}
		}
		if !c.wq.Transfer(e) {
			continue
		}
		if s != nil {
			s.repark(e)
		} else if !e.Set() {
			continue
		}
		woken++
	}
	return woken
}

// NotifyAll wakes every waiter currently enqueued.
func (c *Cond) NotifyAll() int { return c.Notify(math.MaxInt) }

// String implements fmt.Stringer.
func (c *Cond) String() string {
	mode := "lockless"
	switch {
	case c.lock != nil:
		mode = "lock"
	case c.bsem != nil:
		mode = "semaphore"
	}
	return fmt.Sprintf("aiologic.Cond(%s, waiting=%d)", mode, c.wq.Len())
}
