package lowlevel

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// One-shot event states. Transitions are monotonic: pending may become
// set or cancelled, nothing else, never back.
const (
	eventPending uint32 = iota
	eventSet
	eventCancelled
)

// Event is the one-shot resolution cell every blocking primitive
// enqueues. The three variants encode the polymorphism directly:
// WaiterEvent is the live, runtime-backed cell; SetEvent and
// CancelledEvent are pre-resolved placeholders used on paths that must
// hand out an event but already know the outcome.
type Event interface {
	// IsSet reports whether the event resolved to set.
	IsSet() bool
	// Cancelled reports whether the event resolved to cancelled.
	Cancelled() bool
	// Set resolves the event; returns true only for the first
	// effective call.
	Set() bool
	// Wait parks until the event resolves or the deadline/context
	// fires, returning true iff the final state is set.
	Wait(ctx context.Context, deadline time.Time) bool
}

// SetEvent is an always-set placeholder. Its Wait never parks, but
// still performs a checkpoint when Force is true, preserving the
// fairness contract of callers that require at least one yield.
type SetEvent struct {
	Force bool
}

func (SetEvent) IsSet() bool     { return true }
func (SetEvent) Cancelled() bool { return false }
func (SetEvent) Set() bool       { return false }

func (e SetEvent) Wait(context.Context, time.Time) bool {
	if e.Force {
		runtime.Gosched()
	}
	return true
}

// CancelledEvent is an always-cancelled placeholder.
type CancelledEvent struct{}

func (CancelledEvent) IsSet() bool                             { return false }
func (CancelledEvent) Cancelled() bool                         { return true }
func (CancelledEvent) Set() bool                               { return false }
func (CancelledEvent) Wait(context.Context, time.Time) bool    { return false }

// WaiterEvent is a pending one-shot event backed by a runtime waiter.
// It is created by the waiting side immediately before enqueue and may
// afterwards be resolved by any notifier that pops it from a
// WaitQueue; ownership is shared between the two sides and the garbage
// collector drops it with the last holder.
type WaiterEvent struct {
	state   atomic.Uint32
	w       Waiter
	rt      Runtime
	holder  atomic.Pointer[WaitQueue]
	removed atomic.Bool

	// Shield suppresses external cancellation until the event
	// resolves; Force yields a checkpoint even when already set on
	// entry to Wait.
	Shield bool
	Force  bool

	// Ticket is the enqueue stamp assigned by WaitQueue.Append;
	// combined arrival order across queues compares tickets.
	Ticket uint64

	// Gen is a captured generation for resettable-event waits.
	Gen uint64

	// Count is the token amount an acquire-style waiter requested.
	Count int64

	// Task is the waiter's identity, captured when an ownership-aware
	// primitive needs to transfer ownership on handoff.
	Task TaskID

	// Data carries primitive-specific payload: a delegated predicate
	// for condition variables, an item slot for queue waiters.
	Data any
}

// NewEvent creates a pending event parked via the calling task's
// runtime.
func NewEvent() *WaiterEvent {
	rt := CurrentRuntime()
	return &WaiterEvent{w: rt.CreateWaiter(), rt: rt}
}

// NewEventFor creates a pending event for an explicit runtime.
func NewEventFor(rt Runtime) *WaiterEvent {
	return &WaiterEvent{w: rt.CreateWaiter(), rt: rt}
}

// Holder returns the wait queue currently holding e's entry, or nil
// when the entry is detached (not yet enqueued, mid-transfer, or
// consumed). A cancelled waiter removes itself from its holder.
func (e *WaiterEvent) Holder() *WaitQueue { return e.holder.Load() }

// IsSet reports whether the event resolved to set.
func (e *WaiterEvent) IsSet() bool { return e.state.Load() == eventSet }

// Cancelled reports whether the event resolved to cancelled.
func (e *WaiterEvent) Cancelled() bool { return e.state.Load() == eventCancelled }

// Pending reports whether the event is still unresolved.
func (e *WaiterEvent) Pending() bool { return e.state.Load() == eventPending }

// Set resolves the event to set and wakes the parked side. Racing Set
// and Cancel are settled by CAS; at most one wins.
func (e *WaiterEvent) Set() bool {
	if !e.state.CompareAndSwap(eventPending, eventSet) {
		return false
	}
	e.w.Wake()
	return true
}

// Cancel resolves the event to cancelled and wakes the parked side so
// it can observe the outcome promptly.
func (e *WaiterEvent) Cancel() bool {
	if !e.state.CompareAndSwap(eventPending, eventCancelled) {
		return false
	}
	e.w.Wake()
	return true
}

// Wait parks the calling task until the event resolves, the deadline
// elapses, or ctx is cancelled. A timeout or cancellation attempts the
// pending→cancelled transition; if Set won that race the wakeup is
// treated as a success ("stolen success") and it is the caller's job
// to consume or forward it. Returns true iff the final state is set.
func (e *WaiterEvent) Wait(ctx context.Context, deadline time.Time) bool {
	if e.Shield {
		ctx = e.rt.Shield(ctx)
	}
	if e.state.Load() != eventPending {
		if e.IsSet() {
			if e.Force {
				runtime.Gosched()
			}
			return true
		}
		return false
	}
	e.w.Park(ctx, deadline)
	if e.state.Load() == eventSet {
		return true
	}
	e.Cancel()
	// Cancel may have lost a last-instant race with Set.
	return e.state.Load() == eventSet
}

var (
	_ Event = SetEvent{}
	_ Event = CancelledEvent{}
	_ Event = (*WaiterEvent)(nil)
)
