package aiologic

import "errors"

var (
	// ErrBrokenBarrier is returned by barrier waits once the barrier
	// entered the broken state, and by every later wait until reset
	// (where supported).
	ErrBrokenBarrier = errors.New("aiologic: broken barrier")

	// ErrBusyResource is returned by ResourceGuard.Enter when the
	// guard is already held.
	ErrBusyResource = errors.New("aiologic: resource is busy")

	// ErrQueueEmpty is returned by non-blocking gets on an empty
	// queue.
	ErrQueueEmpty = errors.New("aiologic: queue is empty")

	// ErrQueueFull is returned by non-blocking puts on a full queue.
	ErrQueueFull = errors.New("aiologic: queue is full")
)
