package aiologic_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aiologic "github.com/x42005e1f/aiologic"
	"github.com/x42005e1f/aiologic/loop"
)

// TestScenario_CrossRuntimeLock runs two event loops on separate
// goroutine pools, each spawning two tasks that serialize on one
// shared lock with a hold time; all four acquire/release cycles must
// complete, mutually excluded, in arrival order.
func TestScenario_CrossRuntimeLock(t *testing.T) {
	const hold = 40 * time.Millisecond
	ctx := context.Background()

	lk := aiologic.NewLock()
	var loops [2]*loop.Loop
	for i := range loops {
		l, err := loop.New()
		require.NoError(t, err)
		loops[i] = l
		go l.Run(ctx)
		defer l.Shutdown(context.Background())
	}

	var inside atomic.Int32
	var order []int
	var orderMu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()
	for n := 0; n < 4; n++ {
		n := n
		wg.Add(1)
		_, err := loops[n%2].Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			if err := lk.Lock(ctx); err != nil {
				t.Error(err)
				return
			}
			defer lk.Unlock()
			if inside.Add(1) != 1 {
				t.Error("mutual exclusion violated")
			}
			orderMu.Lock()
			order = append(order, n)
			orderMu.Unlock()
			time.Sleep(hold)
			inside.Add(-1)
		})
		require.NoError(t, err)
		// Stagger arrivals so the enqueue order is deterministic:
		// task 0 holds the lock, tasks 1..3 park behind it in order.
		if n == 0 {
			waitFor(t, func() bool { return lk.Locked() }, "first task took the lock")
		} else {
			waitFor(t, func() bool { return lk.Waiting() >= n }, "task parked")
		}
	}
	wg.Wait()

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 4*hold, "cycles must serialize")
	assert.Equal(t, []int{0, 1, 2, 3}, order, "acquisition must be insertion-FIFO across loops")
	assert.False(t, lk.Locked())
}

// TestScenario_CountdownJoin: nine workers finish staggered and count
// down; the joiner unblocks only after the slowest, with the counter
// at zero.
func TestScenario_CountdownJoin(t *testing.T) {
	c := aiologic.NewCountdownEvent(0)
	c.Up(9)
	start := time.Now()
	for i := 1; i <= 9; i++ {
		i := i
		go func() {
			time.Sleep(time.Duration(i) * 10 * time.Millisecond)
			c.Down(1)
		}()
	}
	require.NoError(t, c.Wait(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond, "join must wait for the slowest worker")
	assert.EqualValues(t, 0, c.Value())
}

// TestScenario_LoopTaskBlocksOnPrimitive: a loop task parks on a
// semaphore and is woken by a plain goroutine; the wake is marshalled
// through the loop.
func TestScenario_LoopTaskBlocksOnPrimitive(t *testing.T) {
	ctx := context.Background()
	l, err := loop.New()
	require.NoError(t, err)
	go l.Run(ctx)
	defer l.Shutdown(context.Background())

	sem := aiologic.NewSemaphore(0)
	done := make(chan error, 1)
	_, err = l.Go(ctx, func(ctx context.Context) {
		done <- sem.Acquire(ctx)
	})
	require.NoError(t, err)

	waitFor(t, func() bool { return sem.Waiting() == 1 }, "loop task parked")
	sem.Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine release must wake the loop task")
	}
}

// TestScenario_MixedRuntimeSemaphore: goroutines and loop tasks
// interleave on one semaphore without losing tokens.
func TestScenario_MixedRuntimeSemaphore(t *testing.T) {
	ctx := context.Background()
	l, err := loop.New()
	require.NoError(t, err)
	go l.Run(ctx)
	defer l.Shutdown(context.Background())

	sem := aiologic.NewSemaphore(2)
	var active atomic.Int64
	var wg sync.WaitGroup
	work := func(ctx context.Context) {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if err := sem.Acquire(ctx); err != nil {
				t.Error(err)
				return
			}
			if a := active.Add(1); a > 2 {
				t.Errorf("%d concurrent holders with 2 tokens", a)
			}
			active.Add(-1)
			sem.Release()
		}
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go work(ctx)
		wg.Add(1)
		if _, err := l.Go(ctx, work); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	assert.EqualValues(t, 2, sem.Value(), "tokens must be conserved")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for: " + msg)
		}
		time.Sleep(time.Millisecond)
	}
}
