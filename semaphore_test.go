package aiologic

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestSemaphore_FastPath(t *testing.T) {
	s := NewSemaphore(2)
	require.NoError(t, s.Acquire(context.Background()))
	require.NoError(t, s.Acquire(context.Background()))
	assert.EqualValues(t, 0, s.Value())
	assert.False(t, s.TryAcquire())
	s.Release()
	assert.True(t, s.TryAcquire())
	s.Release()
	s.Release()
	assert.EqualValues(t, 2, s.Value())
}

func TestSemaphore_AcquireReleaseRoundTrip(t *testing.T) {
	s := NewSemaphore(1)
	before := s.Value()
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()
	assert.Equal(t, before, s.Value())
}

func TestSemaphore_BlocksUntilRelease(t *testing.T) {
	s := NewSemaphore(0)
	acquired := make(chan struct{})
	go func() {
		if err := s.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()
	waitFor(t, func() bool { return s.Waiting() == 1 }, "waiter parked")
	select {
	case <-acquired:
		t.Fatal("acquire must block on an empty semaphore")
	case <-time.After(20 * time.Millisecond):
	}
	s.Release()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("release must wake the waiter")
	}
	assert.EqualValues(t, 0, s.Value(), "token must transfer to the waiter, not the counter")
}

func TestSemaphore_FIFOWakeups(t *testing.T) {
	s := NewSemaphore(0)
	const n = 5
	var order []int
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		i := i
		ready := make(chan struct{})
		go func() {
			close(ready)
			if err := s.Acquire(context.Background()); err != nil {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}()
		<-ready
		waitFor(t, func() bool { return s.Waiting() == i+1 }, "waiter parked in order")
	}
	for i := 0; i < n; i++ {
		s.Release()
		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == i+1
		}, "waiter woke")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order, "wakeup order must match enqueue order")
}

func TestSemaphore_CancelledAcquireLeavesTokens(t *testing.T) {
	// Two acquires time out, then a release arrives: the release must
	// not be lost to the cancelled waiters.
	s := NewSemaphore(0)
	var timedOut atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			if err := s.Acquire(ctx); err != nil {
				timedOut.Add(1)
			}
		}()
	}
	waitFor(t, func() bool { return s.Waiting() == 2 }, "both waiters parked")
	time.Sleep(200 * time.Millisecond)
	s.Release()
	wg.Wait()
	assert.EqualValues(t, 2, timedOut.Load(), "both acquires must time out")
	waitFor(t, func() bool { return s.Value() == 1 }, "released token lands on the counter")
}

func TestSemaphore_AcquireN(t *testing.T) {
	s := NewSemaphore(1)
	done := make(chan struct{})
	go func() {
		if err := s.AcquireN(context.Background(), 3); err == nil {
			close(done)
		}
	}()
	waitFor(t, func() bool { return s.Waiting() == 1 }, "bulk waiter parked")
	s.Release()
	select {
	case <-done:
		t.Fatal("3-token acquire must not complete with 2 tokens")
	case <-time.After(20 * time.Millisecond):
	}
	s.Release()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bulk acquire should complete once enough tokens exist")
	}
	assert.EqualValues(t, 0, s.Value())
}

func TestSemaphore_HeadOfLineBlocking(t *testing.T) {
	// A big request at the head must not be barged past by a later
	// small request.
	s := NewSemaphore(0)
	bigDone := make(chan struct{})
	go func() {
		if err := s.AcquireN(context.Background(), 2); err == nil {
			close(bigDone)
		}
	}()
	waitFor(t, func() bool { return s.Waiting() == 1 }, "big waiter parked")
	smallDone := make(chan struct{})
	go func() {
		if err := s.Acquire(context.Background()); err == nil {
			close(smallDone)
		}
	}()
	waitFor(t, func() bool { return s.Waiting() == 2 }, "small waiter parked")
	s.Release()
	select {
	case <-smallDone:
		t.Fatal("small waiter barged past the queue head")
	case <-time.After(50 * time.Millisecond):
	}
	s.Release()
	<-bigDone
	s.ReleaseN(2)
	<-smallDone
}

func TestSemaphore_PanicsOnMisuse(t *testing.T) {
	assert.Panics(t, func() { NewSemaphore(-1) })
	s := NewSemaphore(1)
	assert.Panics(t, func() { s.ReleaseN(0) })
	assert.Panics(t, func() { _ = s.AcquireN(context.Background(), 0) })
}

func TestSemaphore_ContextAlreadyCancelled(t *testing.T) {
	s := NewSemaphore(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Waiting())
}

func TestSemaphore_Invariant_NonNegative(t *testing.T) {
	s := NewSemaphore(4)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				require.NoError(t, s.Acquire(context.Background()))
				if v := s.Value(); v < 0 {
					t.Error("semaphore value went negative")
				}
				s.Release()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 4, s.Value())
}

func TestBoundedSemaphore_RejectsOverRelease(t *testing.T) {
	b := NewBoundedSemaphore(1, 1)
	assert.Panics(t, func() { b.Release() })
	require.NoError(t, b.Acquire(context.Background()))
	b.Release()
	assert.Panics(t, func() { b.Release() })
}

func TestBoundedSemaphore_MaxOneIsBinary(t *testing.T) {
	b := NewBoundedSemaphore(1, 1)
	require.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())
	b.Release()
	assert.True(t, b.TryAcquire())
	b.Release()
	assert.EqualValues(t, 1, b.Value())
}

func TestBoundedSemaphore_ConcurrentReleasesRespectBound(t *testing.T) {
	// 160 releases race toward a bound of 100: exactly 100 must land
	// and the rest must panic, with the counter never above the max.
	b := NewBoundedSemaphore(0, 100)
	var panics atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				func() {
					defer func() {
						if recover() != nil {
							panics.Add(1)
						}
					}()
					b.Release()
				}()
				if v := b.Value(); v > 100 {
					t.Errorf("bound violated: value %d", v)
				}
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, b.Value(), "the bound must be reached exactly")
	assert.EqualValues(t, 60, panics.Load(), "every excess release must panic")
}

func TestBoundedSemaphore_ConstructorValidation(t *testing.T) {
	assert.Panics(t, func() { NewBoundedSemaphore(2, 1) })
	assert.Panics(t, func() { NewBoundedSemaphore(-1, 1) })
	assert.Panics(t, func() { NewBoundedSemaphore(0, 0) })
}

func TestBinarySemaphore_Handoff(t *testing.T) {
	b := NewBinarySemaphore(true)
	require.True(t, b.TryAcquire())
	woken := make(chan struct{})
	go func() {
		if err := b.Acquire(context.Background()); err == nil {
			close(woken)
		}
	}()
	waitFor(t, func() bool { return b.Waiting() == 1 }, "waiter parked")
	b.Release()
	select {
	case <-woken:
	case <-time.After(5 * time.Second):
		t.Fatal("release must hand the token over")
	}
	assert.False(t, b.Available(), "token was handed over, not freed")
	b.Release()
	assert.True(t, b.Available())
}

func TestBinarySemaphore_ReleaseIdempotentWhenFree(t *testing.T) {
	b := NewBinarySemaphore(true)
	b.Release()
	assert.True(t, b.Available())
}
