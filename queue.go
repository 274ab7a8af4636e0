package aiologic

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/x42005e1f/aiologic/lowlevel"
)

// Queue is a bounded queue with two independent wait queues — blocked
// putters and blocked getters — coordinated by a single implicit lock
// (the unlocked flag). A release of the implicit lock prefers whichever
// eligible waiter arrived first, comparing arrival tickets across both
// sides, so put-blockers and get-blockers are served fairly.
//
// A woken waiter receives the implicit lock with the wakeup: the waker
// never releases it, so no new arrival can barge in between the wake
// and the waiter's buffer operation.
//
// The buffer body selects the discipline: FIFO ring, LIFO stack, or
// binary min-heap (see NewQueue, NewLifoQueue, NewPriorityQueue).
type Queue[T any] struct {
	maxsize  int
	unlocked atomic.Uint32
	tickets  atomic.Uint64
	length   atomic.Int64
	putters  lowlevel.WaitQueue
	getters  lowlevel.WaitQueue
	buf      queueBuffer[T]
	kind     string
}

// NewQueue returns a FIFO queue. maxsize <= 0 means unbounded.
func NewQueue[T any](maxsize int) *Queue[T] {
	return newQueue[T](maxsize, &ringBuffer[T]{}, "Queue")
}

// NewLifoQueue returns a LIFO queue. maxsize <= 0 means unbounded.
func NewLifoQueue[T any](maxsize int) *Queue[T] {
	return newQueue[T](maxsize, &stackBuffer[T]{}, "LifoQueue")
}

// NewPriorityQueue returns a priority queue yielding its smallest item
// first. The initial items are heapified before the queue is exposed.
// maxsize <= 0 means unbounded; initial items beyond maxsize panic.
func NewPriorityQueue[T constraints.Ordered](maxsize int, initial ...T) *Queue[T] {
	if maxsize > 0 && len(initial) > maxsize {
		panic("aiologic: priority queue initial items exceed maxsize")
	}
	q := newQueue[T](maxsize, newHeapBuffer(initial), "PriorityQueue")
	q.length.Store(int64(len(initial)))
	return q
}

func newQueue[T any](maxsize int, buf queueBuffer[T], kind string) *Queue[T] {
	q := &Queue[T]{maxsize: maxsize, buf: buf, kind: kind}
	q.unlocked.Store(1)
	return q
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int { return int(q.length.Load()) }

// MaxSize returns the capacity, 0 meaning unbounded.
func (q *Queue[T]) MaxSize() int {
	if q.maxsize < 0 {
		return 0
	}
	return q.maxsize
}

// Full reports whether the buffer is at capacity.
func (q *Queue[T]) Full() bool {
	return q.maxsize > 0 && q.Len() >= q.maxsize
}

// lockBody spins on the implicit lock. Hold times are O(1) buffer
// operations plus wait-queue pokes, so spinning with yields beats
// parking here.
func (q *Queue[T]) lockBody() {
	for !q.unlocked.CompareAndSwap(1, 0) {
		runtime.Gosched()
	}
}

// unlockBody releases the implicit lock, first trying to hand it to
// the earliest eligible waiter across both wait queues.
func (q *Queue[T]) unlockBody() {
	for {
		if q.handBody() {
			return
		}
		q.unlocked.Store(1)
		// A waiter may have enqueued between the scan and the store;
		// serve it if the lock is still ours to take.
		if !q.eligible() {
			return
		}
		if !q.unlocked.CompareAndSwap(1, 0) {
			return
		}
	}
}

// eligible reports whether any queued waiter could make progress.
func (q *Queue[T]) eligible() bool {
	full := q.maxsize > 0 && q.buf.len() >= q.maxsize
	if !full && q.putters.Len() > 0 {
		return true
	}
	return q.buf.len() > 0 && q.getters.Len() > 0
}

// handBody transfers the held implicit lock to the earliest eligible
// waiter. Returns false when nobody can make progress.
func (q *Queue[T]) handBody() bool {
	for {
		var pe, ge *lowlevel.WaiterEvent
		if q.maxsize <= 0 || q.buf.len() < q.maxsize {
			pe = q.putters.Peek()
		}
		if q.buf.len() > 0 {
			ge = q.getters.Peek()
		}
		var e *lowlevel.WaiterEvent
		var from *lowlevel.WaitQueue
		switch {
		case pe != nil && (ge == nil || pe.Ticket < ge.Ticket):
			e, from = pe, &q.putters
		case ge != nil:
			e, from = ge, &q.getters
		default:
			return false
		}
		if e.Set() {
			from.Consume(e)
			return true
		}
	}
}

// Put inserts v, blocking while the buffer is full until space frees
// up or ctx is done.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	q.lockBody()
	for q.maxsize > 0 && q.buf.len() >= q.maxsize {
		if err := ctx.Err(); err != nil {
			q.unlockBody()
			return err
		}
		e := lowlevel.NewEvent()
		e.Ticket = q.tickets.Add(1)
		q.putters.Append(e)
		q.unlockBody()
		if !e.Wait(ctx, time.Time{}) {
			if h := e.Holder(); h != nil {
				h.Remove(e)
			}
			return ctx.Err()
		}
		// Woken holding the implicit lock; re-check and insert.
	}
	q.buf.push(v)
	q.length.Add(1)
	q.unlockBody()
	return nil
}

// TryPut inserts without blocking, returning ErrQueueFull when the
// buffer is at capacity.
func (q *Queue[T]) TryPut(v T) error {
	q.lockBody()
	if q.maxsize > 0 && q.buf.len() >= q.maxsize {
		q.unlockBody()
		return ErrQueueFull
	}
	q.buf.push(v)
	q.length.Add(1)
	q.unlockBody()
	return nil
}

// Get removes and returns the next item per the queue's discipline,
// blocking while the buffer is empty until an item arrives or ctx is
// done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	q.lockBody()
	for q.buf.len() == 0 {
		if err := ctx.Err(); err != nil {
			q.unlockBody()
			return zero, err
		}
		e := lowlevel.NewEvent()
		e.Ticket = q.tickets.Add(1)
		q.getters.Append(e)
		q.unlockBody()
		if !e.Wait(ctx, time.Time{}) {
			if h := e.Holder(); h != nil {
				h.Remove(e)
			}
			return zero, ctx.Err()
		}
	}
	v := q.buf.pop()
	q.length.Add(-1)
	q.unlockBody()
	return v, nil
}

// TryGet removes without blocking, returning ErrQueueEmpty when the
// buffer is empty.
func (q *Queue[T]) TryGet() (T, error) {
	var zero T
	q.lockBody()
	if q.buf.len() == 0 {
		q.unlockBody()
		return zero, ErrQueueEmpty
	}
	v := q.buf.pop()
	q.length.Add(-1)
	q.unlockBody()
	return v, nil
}

// String implements fmt.Stringer.
func (q *Queue[T]) String() string {
	if q.maxsize > 0 {
		return fmt.Sprintf("aiologic.%s(len=%d/%d, putters=%d, getters=%d)",
			q.kind, q.Len(), q.maxsize, q.putters.Len(), q.getters.Len())
	}
	return fmt.Sprintf("aiologic.%s(len=%d, putters=%d, getters=%d)",
		q.kind, q.Len(), q.putters.Len(), q.getters.Len())
}
