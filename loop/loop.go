// Package loop provides a minimal cooperative event loop that doubles
// as an async-class runtime adapter for the aiologic primitives. Tasks
// spawned with Go carry a loop-scoped identity, and waiter wakeups
// directed at them are marshalled through the loop's thread-safe
// ingress, so cross-runtime notifiers never touch loop state directly.
package loop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"

	"github.com/x42005e1f/aiologic/lowlevel"
)

var loopSeq atomic.Uint64

// Loop runs submitted callbacks one at a time on a single goroutine.
type Loop struct {
	state   fastState
	ingress chan func()
	wake    chan struct{}
	done    chan struct{}
	logger  *logiface.Logger[logiface.Event]

	id      uint64
	taskSeq atomic.Uint64

	// OnPanic observes task panics; by default they are swallowed
	// after being logged.
	OnPanic func(PanicError)

	shutOnce sync.Once
}

// New creates a loop. It does not start running until Run is called.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		ingress: make(chan func(), cfg.ingressCapacity),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  cfg.logger,
		id:      loopSeq.Add(1),
	}
	return l, nil
}

// ID returns the loop's process-unique id.
func (l *Loop) ID() uint64 { return l.id }

// State returns the loop's current lifecycle state.
func (l *Loop) State() State { return l.state.load() }

// Run processes submitted tasks until Shutdown is called or ctx is
// done. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.transition(StateAwake, StateRunning) {
		if l.state.load() == StateTerminated {
			// Shutdown terminated the loop before it started.
			return nil
		}
		panic("loop: Run called twice")
	}
	if lg := l.logger; lg != nil {
		lg.Debug().Uint64("loop", l.id).Log("running")
	}
	defer func() {
		l.state.store(StateTerminated)
		close(l.done)
		if lg := l.logger; lg != nil {
			lg.Debug().Uint64("loop", l.id).Log("terminated")
		}
	}()
	for {
		// Fast drain without touching the state machine.
		select {
		case fn := <-l.ingress:
			l.invoke(fn)
			continue
		default:
		}
		if l.state.load() == StateTerminating {
			l.drain()
			return nil
		}
		if !l.state.transition(StateRunning, StateSleeping) {
			// Shutdown raced us.
			continue
		}
		select {
		case fn := <-l.ingress:
			l.state.transition(StateSleeping, StateRunning)
			l.invoke(fn)
		case <-l.wake:
			l.state.transition(StateSleeping, StateRunning)
		case <-ctx.Done():
			l.state.store(StateTerminating)
			l.drain()
			return ctx.Err()
		}
	}
}

// drain empties the ingress buffer during shutdown so no submitted
// callback is silently dropped.
func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.ingress:
			l.invoke(fn)
		default:
			return
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			perr := PanicError{Value: v}
			if lg := l.logger; lg != nil {
				lg.Err().Uint64("loop", l.id).Err(perr).Log("task panicked")
			}
			if h := l.OnPanic; h != nil {
				h(perr)
			}
		}
	}()
	fn()
}

// Submit enqueues fn for execution on the loop goroutine. It never
// blocks: a full ingress buffer reports ErrOverloaded and a
// terminating loop reports ErrTerminated.
func (l *Loop) Submit(fn func()) error {
	if l.state.terminalOrTerminating() {
		return ErrTerminated
	}
	select {
	case l.ingress <- fn:
	default:
		return ErrOverloaded
	}
	// Pair with the sleeping transition in Run.
	l.Wake()
	return nil
}

// Wake pokes a sleeping loop. Safe from any goroutine, idempotent
// while a previous poke is still pending.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Shutdown stops the loop and waits for the run goroutine to finish
// or ctx to be done. Idempotent.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.shutOnce.Do(func() {
		for {
			st := l.state.load()
			if st == StateTerminating || st == StateTerminated {
				return
			}
			if st == StateAwake {
				// Never ran; terminate directly.
				if l.state.transition(StateAwake, StateTerminated) {
					close(l.done)
					return
				}
				continue
			}
			if l.state.transition(st, StateTerminating) {
				l.Wake()
				return
			}
		}
	})
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go spawns fn as a task bound to this loop: for the duration of fn
// the goroutine carries a loop task identity, and primitives that park
// it wake it through the loop's ingress. Returns the task id, or
// ErrTerminated once shutdown has begun.
func (l *Loop) Go(ctx context.Context, fn func(ctx context.Context)) (lowlevel.TaskID, error) {
	if l.state.terminalOrTerminating() {
		return lowlevel.TaskID{}, ErrTerminated
	}
	id := lowlevel.TaskID{Runtime: RuntimeName, ID: l.taskSeq.Add(1) | l.id<<32}
	ready := make(chan struct{})
	go func() {
		registerTask(l, id)
		defer unregisterTask()
		close(ready)
		fn(ctx)
	}()
	<-ready
	return id, nil
}

// String implements fmt.Stringer.
func (l *Loop) String() string {
	return "loop.Loop(" + l.state.load().String() + ")"
}
