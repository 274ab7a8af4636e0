package lowlevel

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// RuntimeClass partitions runtimes by scheduling model, which decides
// which checkpoint toggle applies to their waiters.
type RuntimeClass uint8

const (
	// ClassThreaded runtimes are preemptive and may run in parallel.
	ClassThreaded RuntimeClass = iota
	// ClassGreen runtimes are cooperative with implicit yields.
	ClassGreen
	// ClassAsync runtimes are cooperative event loops.
	ClassAsync
)

// Runtime is the adapter contract the engine consumes. Adapters
// register themselves with RegisterRuntime; the engine never imports
// runtime-specific packages.
type Runtime interface {
	// Name is the stable runtime name used in task identities.
	Name() string

	// Class reports the runtime's scheduling model.
	Class() RuntimeClass

	// CurrentTaskID returns the identity of the calling task. Only
	// meaningful when IsCurrent is true.
	CurrentTaskID() TaskID

	// Monotonic is the runtime's sleep-time clock.
	Monotonic() time.Duration

	// Sleep suspends the calling task for d, or until ctx is done.
	// d == 0 returns immediately; d < 0 sleeps forever, returning
	// only on cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// CreateWaiter produces a park token for the calling task.
	CreateWaiter() Waiter

	// Shield derives a context whose external cancellation is
	// suppressed; the engine uses it to protect restoration steps
	// such as a condition variable's lock re-acquisition.
	Shield(ctx context.Context) context.Context

	// IsCurrent reports whether the calling task belongs to this
	// runtime. Must be a pure function of thread-local state so
	// signal handlers can answer it safely.
	IsCurrent() bool
}

var runtimeRegistry atomic.Pointer[[]Runtime]

// RegisterRuntime adds a runtime adapter to the probe list. Adapters
// are probed in registration order. Registering two adapters with the
// same name panics.
func RegisterRuntime(r Runtime) {
	for {
		old := runtimeRegistry.Load()
		var rs []Runtime
		if old != nil {
			for _, existing := range *old {
				if existing.Name() == r.Name() {
					panic(fmt.Sprintf("lowlevel: runtime %q already registered", r.Name()))
				}
			}
			rs = append(rs, *old...)
		}
		rs = append(rs, r)
		if runtimeRegistry.CompareAndSwap(old, &rs) {
			return
		}
	}
}

// CurrentRuntime returns the runtime the calling task belongs to,
// falling back to the plain goroutine adapter. Inside a signal-safety
// context no registered adapter is probed.
func CurrentRuntime() Runtime {
	if rs := runtimeRegistry.Load(); rs != nil && RuntimeProbingAllowed() {
		for _, r := range *rs {
			if r.IsCurrent() {
				return r
			}
		}
	}
	return goroutineRuntime{}
}

// CurrentTaskID returns the identity of the calling task under its
// detected runtime.
func CurrentTaskID() TaskID {
	return CurrentRuntime().CurrentTaskID()
}

// Checkpoint yields to the scheduler if the configuration enables
// checkpoints for the runtime's class. Events with the Force flag yield
// on their own, independently of this toggle.
func Checkpoint(rt Runtime) {
	cfg := CurrentConfig()
	switch rt.Class() {
	case ClassGreen:
		if !cfg.GreenCheckpoints {
			return
		}
	case ClassAsync:
		if !cfg.AsyncCheckpoints {
			return
		}
	default:
		return
	}
	runtime.Gosched()
}

// goroutineRuntime is the always-available fallback adapter: every
// caller is a goroutine. It is classed green because goroutines are
// cooperatively scheduled from the engine's point of view, with
// runtime.Gosched as the yield.
type goroutineRuntime struct{}

// GoroutineRuntimeName is the runtime component of goroutine task ids.
const GoroutineRuntimeName = "goroutine"

func (goroutineRuntime) Name() string        { return GoroutineRuntimeName }
func (goroutineRuntime) Class() RuntimeClass { return ClassGreen }

func (goroutineRuntime) CurrentTaskID() TaskID {
	return TaskID{Runtime: GoroutineRuntimeName, ID: GoroutineID()}
}

func (goroutineRuntime) Monotonic() time.Duration { return Monotonic() }

func (goroutineRuntime) Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func (goroutineRuntime) CreateWaiter() Waiter { return NewWaiter() }

func (goroutineRuntime) Shield(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (goroutineRuntime) IsCurrent() bool { return true }
