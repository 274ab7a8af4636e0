package loop

import (
	"context"
	"testing"
	"time"

	"github.com/x42005e1f/aiologic/lowlevel"
)

func TestLoopRuntime_IdentityInsideTask(t *testing.T) {
	l := startLoop(t)
	ids := make(chan lowlevel.TaskID, 1)
	want, err := l.Go(context.Background(), func(ctx context.Context) {
		ids <- lowlevel.CurrentTaskID()
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-ids:
		if got != want {
			t.Fatalf("task identity mismatch: got %v want %v", got, want)
		}
		if got.Runtime != RuntimeName {
			t.Fatalf("task must carry the loop runtime name, got %q", got.Runtime)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestLoopRuntime_IdentityOutsideTask(t *testing.T) {
	id := lowlevel.CurrentTaskID()
	if id.Runtime == RuntimeName {
		t.Fatal("plain goroutines must not resolve to the loop runtime")
	}
}

func TestLoopRuntime_DistinctTaskIDs(t *testing.T) {
	l := startLoop(t)
	a, err := l.Go(context.Background(), func(ctx context.Context) {})
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Go(context.Background(), func(ctx context.Context) {})
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("tasks must receive distinct identities")
	}
}

func TestLoopRuntime_UnregisterOnReturn(t *testing.T) {
	l := startLoop(t)
	done := make(chan struct{})
	_, err := l.Go(context.Background(), func(ctx context.Context) {
		if !(loopRuntime{}).IsCurrent() {
			t.Error("task goroutine must be registered while running")
		}
		close(done)
	})
	if err != nil {
		t.Fatal(err)
	}
	<-done
	if (loopRuntime{}).IsCurrent() {
		t.Fatal("test goroutine must not be registered")
	}
}

func TestLoopWaiter_WakeFromOutsideMarshalsThroughLoop(t *testing.T) {
	l := startLoop(t)
	outcome := make(chan lowlevel.ParkOutcome, 1)
	started := make(chan lowlevel.Waiter, 1)
	_, err := l.Go(context.Background(), func(ctx context.Context) {
		w := (loopRuntime{}).CreateWaiter()
		if _, ok := w.(*loopWaiter); !ok {
			t.Error("loop task must receive a loop waiter")
		}
		started <- w
		outcome <- w.Park(ctx, time.Time{})
	})
	if err != nil {
		t.Fatal(err)
	}
	w := <-started
	w.Wake()
	select {
	case out := <-outcome:
		if out != lowlevel.ParkWoken {
			t.Fatalf("expected ParkWoken, got %v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("marshalled wake did not land")
	}
}

func TestLoopWaiter_WakeSurvivesLoopShutdown(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}
	go l.Run(context.Background())
	inner := lowlevel.NewWaiter()
	w := &loopWaiter{inner: inner, loop: l}
	if err := l.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Wake()
	if out := inner.Park(context.Background(), time.Now().Add(time.Second)); out != lowlevel.ParkWoken {
		t.Fatal("wake must be delivered directly when the loop is gone")
	}
}
