package aiologic

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// Barrier phase states.
const (
	phaseFilling uint32 = iota
	phaseDraining
	phaseBroken
)

// barrierPhase is one cohort of arrivals. Latches own a single phase;
// cyclic barriers chain them. The broken transition races the trip
// transition and CAS decides; whichever wins defines the outcome for
// every not-yet-woken task in the cohort.
type barrierPhase struct {
	arrived atomic.Int64
	state   atomic.Uint32
	wq      lowlevel.WaitQueue
}

// join is the shared arrival path: idx is this task's 0-based arrival
// index, parties the trip threshold (0 = never trips), trip the
// callback run by the arrival that fills the cohort before the cohort
// is drained.
func (p *barrierPhase) join(ctx context.Context, parties, idx int64, trip func()) (int64, error) {
	if parties > 0 && idx == parties-1 {
		if p.state.CompareAndSwap(phaseFilling, phaseDraining) {
			if trip != nil {
				trip()
			}
			broadcast(&p.wq)
			lowlevel.Checkpoint(lowlevel.CurrentRuntime())
			return idx, nil
		}
		return idx, ErrBrokenBarrier
	}
	e := lowlevel.NewEvent()
	p.wq.Append(e)
	switch p.state.Load() {
	case phaseDraining:
		// The trip's drain may have run before our entry landed.
		if e.Cancel() {
			p.wq.Remove(e)
		}
		return idx, nil
	case phaseBroken:
		if e.Cancel() {
			p.wq.Remove(e)
		}
		return idx, ErrBrokenBarrier
	}
	if e.Wait(ctx, time.Time{}) {
		if p.state.Load() == phaseBroken {
			return idx, ErrBrokenBarrier
		}
		return idx, nil
	}
	// Timed out or cancelled: a failed wait breaks the cohort, unless
	// the trip already won, in which case the wakeup was stolen from
	// us and counts as success.
	e.Cancel()
	p.wq.Remove(e)
	if p.state.CompareAndSwap(phaseFilling, phaseBroken) {
		broadcast(&p.wq)
		return idx, ctx.Err()
	}
	if p.state.Load() == phaseDraining {
		return idx, nil
	}
	return idx, ErrBrokenBarrier
}

func (p *barrierPhase) abort() bool {
	if p.state.CompareAndSwap(phaseFilling, phaseBroken) {
		broadcast(&p.wq)
		return true
	}
	return false
}

// Latch is a single-use barrier: parties tasks call Wait; the arrival
// that completes the cohort wakes everyone, itself included. With
// parties 0 the latch never trips and only Abort releases the waiters.
// Broken is terminal.
type Latch struct {
	parties int64
	ph      barrierPhase
}

// NewLatch returns a latch for the given number of parties. parties
// must be >= 0; 0 means "only released by explicit abort".
func NewLatch(parties int64) *Latch {
	if parties < 0 {
		panic("aiologic: negative latch parties")
	}
	return &Latch{parties: parties}
}

// Parties returns the trip threshold.
func (l *Latch) Parties() int64 { return l.parties }

// Arrived returns the number of arrivals so far.
func (l *Latch) Arrived() int64 { return l.ph.arrived.Load() }

// Broken reports whether the latch is broken.
func (l *Latch) Broken() bool { return l.ph.state.Load() == phaseBroken }

// Wait arrives at the latch and blocks until all parties have arrived,
// returning this task's 0-based arrival index. A failed wait (timeout
// or cancellation) breaks the latch for every current and future
// waiter. Arrivals after the trip return immediately.
func (l *Latch) Wait(ctx context.Context) (int64, error) {
	switch l.ph.state.Load() {
	case phaseBroken:
		return 0, ErrBrokenBarrier
	case phaseDraining:
		return l.parties - 1, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx := l.ph.arrived.Add(1) - 1
	if l.parties > 0 && idx >= l.parties {
		// Arrival after the cohort filled.
		return idx, nil
	}
	return l.ph.join(ctx, l.parties, idx, nil)
}

// Abort breaks the latch, releasing all current waiters with
// ErrBrokenBarrier.
func (l *Latch) Abort() { l.ph.abort() }

// With arrives at the latch and, on success, runs fn; if fn returns an
// error the latch is aborted so a dependent cohort cannot silently
// hang.
func (l *Latch) With(ctx context.Context, fn func(index int64) error) error {
	idx, err := l.Wait(ctx)
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		l.Abort()
		return err
	}
	return nil
}

// String implements fmt.Stringer.
func (l *Latch) String() string {
	return fmt.Sprintf("aiologic.Latch(parties=%d, arrived=%d, %s)",
		l.parties, l.Arrived(), phaseName(l.ph.state.Load()))
}

// Barrier is a cyclic barrier: once a cohort of parties tasks drains,
// the barrier refills for the next phase. Each arrival receives its
// 0-based index within the phase, which is also its wakeup position;
// index 0 conventionally performs any per-phase finalization.
type Barrier struct {
	parties int64
	phase   atomic.Uint64
	cur     atomic.Pointer[barrierPhase]
}

// NewBarrier returns a cyclic barrier for parties > 0 tasks.
func NewBarrier(parties int64) *Barrier {
	if parties < 1 {
		panic("aiologic: barrier parties must be >= 1")
	}
	b := &Barrier{parties: parties}
	b.cur.Store(&barrierPhase{})
	return b
}

// Parties returns the cohort size.
func (b *Barrier) Parties() int64 { return b.parties }

// Phase returns the number of completed phases.
func (b *Barrier) Phase() uint64 { return b.phase.Load() }

// Broken reports whether the current phase is broken.
func (b *Barrier) Broken() bool { return b.cur.Load().state.Load() == phaseBroken }

// Wait arrives at the barrier and blocks until the current cohort
// fills, returning this task's 0-based index within the phase. A
// failed wait breaks the current phase; subsequent waits return
// ErrBrokenBarrier.
func (b *Barrier) Wait(ctx context.Context) (int64, error) {
	for {
		p := b.cur.Load()
		if p.state.Load() == phaseBroken {
			return 0, ErrBrokenBarrier
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		idx := p.arrived.Add(1) - 1
		if idx >= b.parties {
			// Cohort filled; its tripper is installing the next
			// phase.
			for b.cur.Load() == p && p.state.Load() != phaseBroken {
				runtime.Gosched()
			}
			continue
		}
		return p.join(ctx, b.parties, idx, func() {
			b.cur.CompareAndSwap(p, &barrierPhase{})
			b.phase.Add(1)
		})
	}
}

// Abort breaks the current phase.
func (b *Barrier) Abort() { b.cur.Load().abort() }

// With arrives at the barrier and, on success, runs fn with the
// arrival index; if fn returns an error the barrier is aborted.
func (b *Barrier) With(ctx context.Context, fn func(index int64) error) error {
	idx, err := b.Wait(ctx)
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		b.Abort()
		return err
	}
	return nil
}

// String implements fmt.Stringer.
func (b *Barrier) String() string {
	p := b.cur.Load()
	return fmt.Sprintf("aiologic.Barrier(parties=%d, arrived=%d, phase=%d, %s)",
		b.parties, p.arrived.Load(), b.Phase(), phaseName(p.state.Load()))
}

// RBarrier is a cyclic barrier whose broken state can be cleared:
// Reset forces any current waiters into the broken outcome and
// installs a fresh phase.
type RBarrier struct {
	Barrier
}

// NewRBarrier returns a resettable cyclic barrier.
func NewRBarrier(parties int64) *RBarrier {
	if parties < 1 {
		panic("aiologic: barrier parties must be >= 1")
	}
	r := &RBarrier{}
	r.parties = parties
	r.cur.Store(&barrierPhase{})
	return r
}

// Reset breaks the current phase, releasing its waiters with
// ErrBrokenBarrier, and clears the barrier for reuse.
func (r *RBarrier) Reset() {
	old := r.cur.Swap(&barrierPhase{})
	old.abort()
}

// String implements fmt.Stringer.
func (r *RBarrier) String() string {
	p := r.cur.Load()
	return fmt.Sprintf("aiologic.RBarrier(parties=%d, arrived=%d, phase=%d, %s)",
		r.parties, p.arrived.Load(), r.Phase(), phaseName(p.state.Load()))
}

func phaseName(s uint32) string {
	switch s {
	case phaseFilling:
		return "filling"
	case phaseDraining:
		return "draining"
	default:
		return "broken"
	}
}
