package aiologic

import (
	"context"
	"fmt"
	"runtime"
)

// SimpleQueue is an unbounded FIFO: a lock-free bag paired with a
// counting semaphore. Put never blocks and is signal-safe; Get blocks
// until an item arrives.
type SimpleQueue[T any] struct {
	items *msQueue[T]
	sem   Semaphore
}

// NewSimpleQueue returns an empty unbounded FIFO queue.
func NewSimpleQueue[T any]() *SimpleQueue[T] {
	return &SimpleQueue[T]{items: newMSQueue[T]()}
}

// Len returns the number of queued items.
func (q *SimpleQueue[T]) Len() int { return int(q.sem.Value()) }

// Put enqueues v. Never blocks.
func (q *SimpleQueue[T]) Put(v T) {
	q.items.push(v)
	q.sem.Release()
}

// Get dequeues the oldest item, blocking until one is available or ctx
// is done.
func (q *SimpleQueue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := q.sem.Acquire(ctx); err != nil {
		return zero, err
	}
	return q.take(), nil
}

// TryGet dequeues without blocking, returning ErrQueueEmpty when no
// item is available.
func (q *SimpleQueue[T]) TryGet() (T, error) {
	var zero T
	if !q.sem.TryAcquire() {
		return zero, ErrQueueEmpty
	}
	return q.take(), nil
}

// take pops the item backing an acquired token. The push always
// happens before the matching release, but a concurrent taker may
// momentarily hold "our" item's node, so spin briefly.
func (q *SimpleQueue[T]) take() T {
	for {
		if v, ok := q.items.pop(); ok {
			return v
		}
		runtime.Gosched()
	}
}

// String implements fmt.Stringer.
func (q *SimpleQueue[T]) String() string {
	return fmt.Sprintf("aiologic.SimpleQueue(len=%d, waiting=%d)", q.Len(), q.sem.Waiting())
}

// SimpleLifoQueue is the LIFO sibling of SimpleQueue, backed by a
// Treiber stack.
type SimpleLifoQueue[T any] struct {
	items lifoStack[T]
	sem   Semaphore
}

// NewSimpleLifoQueue returns an empty unbounded LIFO queue.
func NewSimpleLifoQueue[T any]() *SimpleLifoQueue[T] {
	return &SimpleLifoQueue[T]{}
}

// Len returns the number of queued items.
func (q *SimpleLifoQueue[T]) Len() int { return int(q.sem.Value()) }

// Put pushes v. Never blocks.
func (q *SimpleLifoQueue[T]) Put(v T) {
	q.items.push(v)
	q.sem.Release()
}

// Get pops the newest item, blocking until one is available or ctx is
// done.
func (q *SimpleLifoQueue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := q.sem.Acquire(ctx); err != nil {
		return zero, err
	}
	return q.take(), nil
}

// TryGet pops without blocking, returning ErrQueueEmpty when no item
// is available.
func (q *SimpleLifoQueue[T]) TryGet() (T, error) {
	var zero T
	if !q.sem.TryAcquire() {
		return zero, ErrQueueEmpty
	}
	return q.take(), nil
}

func (q *SimpleLifoQueue[T]) take() T {
	for {
		if v, ok := q.items.pop(); ok {
			return v
		}
		runtime.Gosched()
	}
}

// String implements fmt.Stringer.
func (q *SimpleLifoQueue[T]) String() string {
	return fmt.Sprintf("aiologic.SimpleLifoQueue(len=%d, waiting=%d)", q.Len(), q.sem.Waiting())
}
