package aiologic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch_TripsAtParties(t *testing.T) {
	l := NewLatch(3)
	var wg sync.WaitGroup
	indexes := make([]int64, 0, 3)
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := l.Wait(context.Background())
			require.NoError(t, err)
			mu.Lock()
			indexes = append(indexes, idx)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.ElementsMatch(t, []int64{0, 1, 2}, indexes, "each arrival gets a distinct index")
	assert.False(t, l.Broken())
}

func TestLatch_WaitAfterTripReturnsImmediately(t *testing.T) {
	l := NewLatch(1)
	_, err := l.Wait(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = l.Wait(ctx)
	assert.NoError(t, err)
}

func TestLatch_TimeoutBreaks(t *testing.T) {
	l := NewLatch(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Wait(ctx)
	require.Error(t, err)
	assert.True(t, l.Broken(), "failed wait must break the latch")
	_, err = l.Wait(context.Background())
	assert.ErrorIs(t, err, ErrBrokenBarrier, "later waits must see the broken state")
}

func TestLatch_ZeroPartiesOnlyAbortReleases(t *testing.T) {
	l := NewLatch(0)
	errs := make(chan error, 1)
	go func() {
		_, err := l.Wait(context.Background())
		errs <- err
	}()
	select {
	case <-errs:
		t.Fatal("zero-parties latch must never auto-trip")
	case <-time.After(50 * time.Millisecond):
	}
	l.Abort()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrBrokenBarrier)
	case <-time.After(5 * time.Second):
		t.Fatal("abort must release the waiter")
	}
}

func TestBarrier_PhaseOrdering(t *testing.T) {
	// Three tasks arrive in a known order and must receive indexes in
	// that same order.
	b := NewBarrier(3)
	results := make([]int64, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := b.Wait(context.Background())
			require.NoError(t, err)
			results[i] = idx
		}()
		if i < 2 {
			// Ensure arrival order: wait until this task parked.
			waitFor(t, func() bool {
				p := b.cur.Load()
				return p.arrived.Load() == int64(i+1)
			}, "task arrived")
		}
	}
	wg.Wait()
	assert.Equal(t, []int64{0, 1, 2}, results, "indexes must follow arrival order")
	assert.EqualValues(t, 1, b.Phase())
}

func TestBarrier_Cyclic(t *testing.T) {
	b := NewBarrier(2)
	for phase := 0; phase < 3; phase++ {
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := b.Wait(context.Background())
				require.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.EqualValues(t, phase+1, b.Phase())
	}
}

func TestBarrier_BrokenIsSticky(t *testing.T) {
	b := NewBarrier(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Wait(ctx)
	require.Error(t, err)
	require.True(t, b.Broken())
	_, err = b.Wait(context.Background())
	assert.ErrorIs(t, err, ErrBrokenBarrier)
}

func TestBarrier_AbortWakesWaiters(t *testing.T) {
	b := NewBarrier(3)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := b.Wait(context.Background())
			errs <- err
		}()
	}
	waitFor(t, func() bool { return b.cur.Load().arrived.Load() == 2 }, "waiters arrived")
	time.Sleep(10 * time.Millisecond)
	b.Abort()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrBrokenBarrier)
		case <-time.After(5 * time.Second):
			t.Fatal("abort must wake all waiters")
		}
	}
}

func TestRBarrier_ResetClearsBroken(t *testing.T) {
	r := NewRBarrier(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	require.Error(t, err)
	require.True(t, r.Broken())
	r.Reset()
	require.False(t, r.Broken())
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Wait(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestRBarrier_ResetBreaksCurrentWaiters(t *testing.T) {
	r := NewRBarrier(2)
	errs := make(chan error, 1)
	go func() {
		_, err := r.Wait(context.Background())
		errs <- err
	}()
	waitFor(t, func() bool { return r.cur.Load().arrived.Load() == 1 }, "waiter arrived")
	time.Sleep(10 * time.Millisecond)
	r.Reset()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrBrokenBarrier)
	case <-time.After(5 * time.Second):
		t.Fatal("reset must release current waiters")
	}
}

func TestBarrier_WithAbortsOnError(t *testing.T) {
	b := NewBarrier(1)
	sentinel := errors.New("phase failed")
	err := b.With(context.Background(), func(index int64) error {
		assert.EqualValues(t, 0, index)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	// The abort targets the phase installed after the successful
	// trip, so the next cohort observes the failure.
	assert.True(t, b.Broken())
}
