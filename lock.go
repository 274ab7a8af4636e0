package aiologic

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// Lock is an ownable mutex built on a binary semaphore. The owner slot
// records which task holds it; release is cooperative (Unlock does not
// verify the caller), matching the convention that wrapper APIs
// enforce pairing.
type Lock struct {
	sem   BinarySemaphore
	owner atomic.Pointer[lowlevel.TaskID]
}

// NewLock returns an unlocked Lock.
func NewLock() *Lock {
	l := &Lock{}
	l.sem.state.Store(1)
	return l
}

// Locked reports whether the lock is held.
func (l *Lock) Locked() bool { return !l.sem.Available() }

// Waiting returns the number of parked contenders.
func (l *Lock) Waiting() int { return l.sem.Waiting() }

// Owner returns the holder's identity, or the zero TaskID when
// unlocked.
func (l *Lock) Owner() lowlevel.TaskID {
	if p := l.owner.Load(); p != nil {
		return *p
	}
	return lowlevel.TaskID{}
}

// OwnedByCurrent reports whether the calling task holds the lock.
func (l *Lock) OwnedByCurrent() bool {
	p := l.owner.Load()
	return p != nil && *p == lowlevel.CurrentTaskID()
}

// TryLock takes the lock without blocking.
func (l *Lock) TryLock() bool {
	if !l.sem.TryAcquire() {
		return false
	}
	id := lowlevel.CurrentTaskID()
	l.owner.Store(&id)
	return true
}

// Lock takes the lock, blocking until it is free or ctx is done. The
// owner slot is written after the semaphore is taken, so an observer
// that sees an owner also sees the lock held.
func (l *Lock) Lock(ctx context.Context) error {
	if err := l.sem.Acquire(ctx); err != nil {
		return err
	}
	id := lowlevel.CurrentTaskID()
	l.owner.Store(&id)
	return nil
}

// Unlock releases the lock. The owner slot is cleared before the
// semaphore is released. If a condition variable reparked waiters onto
// this lock, ownership transfers to the first of them directly.
func (l *Lock) Unlock() {
	l.owner.Store(nil)
	l.sem.Release()
}

// With runs fn while holding the lock.
func (l *Lock) With(ctx context.Context, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// String implements fmt.Stringer.
func (l *Lock) String() string {
	if o := l.owner.Load(); o != nil {
		return fmt.Sprintf("aiologic.Lock(locked by %s/%d, waiting=%d)",
			o.Runtime, o.ID, l.sem.Waiting())
	}
	return fmt.Sprintf("aiologic.Lock(unlocked, waiting=%d)", l.sem.Waiting())
}

// RLock is a reentrant Lock. Nested acquires by the owner increment a
// recursion counter; the underlying semaphore is released only when
// the counter returns to zero.
//
// Field ordering is part of the contract for same-thread signal
// handlers: the owner is written before the recursion counter on
// acquire and the counter is cleared before the owner on release, so
// an interrupted observer never reads "owned with zero recursion" as
// "someone else holds it".
type RLock struct {
	lock      Lock
	recursion atomic.Int64
}

// NewRLock returns an unlocked reentrant lock.
func NewRLock() *RLock {
	r := &RLock{}
	r.lock.sem.state.Store(1)
	return r
}

// Locked reports whether the lock is held.
func (r *RLock) Locked() bool { return r.lock.Locked() }

// Recursion returns the current recursion depth.
func (r *RLock) Recursion() int64 { return r.recursion.Load() }

// Owner returns the holder's identity, or the zero TaskID.
func (r *RLock) Owner() lowlevel.TaskID { return r.lock.Owner() }

// TryLock takes the lock without blocking; reentrant acquires by the
// owner always succeed.
func (r *RLock) TryLock() bool {
	id := lowlevel.CurrentTaskID()
	if p := r.lock.owner.Load(); p != nil && *p == id {
		r.recursion.Add(1)
		return true
	}
	if !r.lock.sem.TryAcquire() {
		return false
	}
	r.lock.owner.Store(&id)
	r.recursion.Store(1)
	return true
}

// Lock takes the lock with recursion count 1, or increments the count
// when the caller already owns it. Reentrant acquires perform a
// checkpoint so context-switch behavior stays predictable.
func (r *RLock) Lock(ctx context.Context) error { return r.LockN(ctx, 1) }

// LockN takes the lock with recursion count n in one shot.
func (r *RLock) LockN(ctx context.Context, n int64) error {
	if n < 1 {
		panic("aiologic: rlock acquire count must be >= 1")
	}
	rt := lowlevel.CurrentRuntime()
	id := rt.CurrentTaskID()
	if p := r.lock.owner.Load(); p != nil && *p == id {
		lowlevel.Checkpoint(rt)
		r.recursion.Add(n)
		return nil
	}
	if err := r.lock.sem.Acquire(ctx); err != nil {
		return err
	}
	r.lock.owner.Store(&id)
	r.recursion.Store(n)
	return nil
}

// Unlock decrements the recursion counter, releasing the underlying
// semaphore when it reaches zero. Calling it from a task that does not
// own the lock is a programmer error and panics.
func (r *RLock) Unlock() {
	id := lowlevel.CurrentTaskID()
	p := r.lock.owner.Load()
	if p == nil || *p != id {
		panic("aiologic: rlock released by non-owner")
	}
	if r.recursion.Add(-1) > 0 {
		return
	}
	r.lock.owner.Store(nil)
	r.lock.sem.Release()
}

// With runs fn while holding the lock.
func (r *RLock) With(ctx context.Context, fn func() error) error {
	if err := r.Lock(ctx); err != nil {
		return err
	}
	defer r.Unlock()
	return fn()
}

// String implements fmt.Stringer.
func (r *RLock) String() string {
	if o := r.lock.owner.Load(); o != nil {
		return fmt.Sprintf("aiologic.RLock(locked by %s/%d, recursion=%d, waiting=%d)",
			o.Runtime, o.ID, r.recursion.Load(), r.lock.sem.Waiting())
	}
	return fmt.Sprintf("aiologic.RLock(unlocked, waiting=%d)", r.lock.sem.Waiting())
}
