package loop

import (
	"context"
	"sync"
	"time"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// RuntimeName is the runtime component of loop task identities.
const RuntimeName = "loop"

// Tasks spawned with Loop.Go register their goroutine here so the
// adapter can answer identity probes from thread-local state alone.
const taskShardCount = 64

type taskShard struct {
	mu sync.Mutex
	m  map[uint64]taskBinding
}

type taskBinding struct {
	loop *Loop
	id   lowlevel.TaskID
}

var taskShards [taskShardCount]taskShard

func init() {
	for i := range taskShards {
		taskShards[i].m = make(map[uint64]taskBinding)
	}
	lowlevel.RegisterRuntime(loopRuntime{})
}

func taskShardFor(gid uint64) *taskShard {
	return &taskShards[gid%taskShardCount]
}

func registerTask(l *Loop, id lowlevel.TaskID) {
	gid := lowlevel.GoroutineID()
	s := taskShardFor(gid)
	s.mu.Lock()
	s.m[gid] = taskBinding{loop: l, id: id}
	s.mu.Unlock()
}

func unregisterTask() {
	gid := lowlevel.GoroutineID()
	s := taskShardFor(gid)
	s.mu.Lock()
	delete(s.m, gid)
	s.mu.Unlock()
}

func currentBinding() (taskBinding, bool) {
	gid := lowlevel.GoroutineID()
	s := taskShardFor(gid)
	s.mu.Lock()
	b, ok := s.m[gid]
	s.mu.Unlock()
	return b, ok
}

// loopRuntime is the async-class adapter registered at package init.
type loopRuntime struct{}

func (loopRuntime) Name() string                 { return RuntimeName }
func (loopRuntime) Class() lowlevel.RuntimeClass { return lowlevel.ClassAsync }

func (loopRuntime) CurrentTaskID() lowlevel.TaskID {
	if b, ok := currentBinding(); ok {
		return b.id
	}
	return lowlevel.TaskID{Runtime: RuntimeName, ID: lowlevel.GoroutineID()}
}

func (loopRuntime) Monotonic() time.Duration { return lowlevel.Monotonic() }

// Sleep parks the task goroutine directly; the loop itself keeps
// running, matching the one-goroutine-per-task execution model.
// d == 0 returns immediately; d < 0 sleeps until cancellation.
func (loopRuntime) Sleep(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return ctx.Err()
	}
	if d < 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	w := lowlevel.NewWaiter()
	if out := w.Park(ctx, time.Now().Add(d)); out == lowlevel.ParkTimedOut {
		return nil
	}
	return ctx.Err()
}

// CreateWaiter wraps the goroutine waiter so that wakes are marshalled
// through the owning loop: notifiers on other runtimes enqueue the
// unpark instead of mutating loop-task state from outside, and wakeups
// of co-located tasks are serialized in ingress order.
func (loopRuntime) CreateWaiter() lowlevel.Waiter {
	w := lowlevel.NewWaiter()
	if b, ok := currentBinding(); ok {
		return &loopWaiter{inner: w, loop: b.loop}
	}
	return w
}

func (loopRuntime) Shield(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (loopRuntime) IsCurrent() bool {
	_, ok := currentBinding()
	return ok
}

type loopWaiter struct {
	inner lowlevel.Waiter
	loop  *Loop
}

func (w *loopWaiter) Park(ctx context.Context, deadline time.Time) lowlevel.ParkOutcome {
	return w.inner.Park(ctx, deadline)
}

func (w *loopWaiter) Wake() {
	if err := w.loop.Submit(w.inner.Wake); err != nil {
		// Loop gone or saturated; deliver directly rather than lose
		// the wakeup.
		w.inner.Wake()
	}
}
