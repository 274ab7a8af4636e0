package lowlevel

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// compactThreshold is the tombstone count that triggers a compaction
// walk under relaxed fairness. Under perfect fairness every removal
// compacts.
const compactThreshold = 16

// wqnode is a link in the Michael–Scott list backing a WaitQueue. The
// event slot is cleared when the entry is consumed or reclaimed; a
// node whose slot is nil or holds a cancelled event is a tombstone. A
// node's next pointer is written once by Append and thereafter only
// redirected by the unlink CAS in compact, which always bypasses
// tombstones; a bypassed node keeps its next pointer forever, so a
// reader that entered the list through it still reaches every live
// successor.
type wqnode struct {
	event atomic.Pointer[WaiterEvent]
	next  atomic.Pointer[wqnode]
}

type wqlist struct {
	head atomic.Pointer[wqnode]
	tail atomic.Pointer[wqnode]
}

// WaitQueue is an append-only concurrent FIFO of events with a
// tombstone-tolerant removal protocol. The backing list is allocated
// lazily on the first Append, so an uncontended primitive costs two
// pointers and a few counters. The zero value is ready to use.
type WaitQueue struct {
	_       cpu.CacheLinePad
	list    atomic.Pointer[wqlist]
	length  atomic.Int64
	tombs   atomic.Int64
	tickets atomic.Uint64
	cmu     spinLock
	_       cpu.CacheLinePad
}

func (q *WaitQueue) init() *wqlist {
	for {
		if l := q.list.Load(); l != nil {
			return l
		}
		l := &wqlist{}
		sentinel := &wqnode{}
		l.head.Store(sentinel)
		l.tail.Store(sentinel)
		if q.list.CompareAndSwap(nil, l) {
			return l
		}
	}
}

// Append enqueues e at the tail, stamping an arrival ticket unless the
// caller already assigned one (dual-queue primitives stamp tickets
// from a counter shared across their queues). Lock-free.
func (q *WaitQueue) Append(e *WaiterEvent) {
	if e.Ticket == 0 {
		e.Ticket = q.tickets.Add(1)
	}
	e.holder.Store(q)
	l := q.init()
	n := &wqnode{}
	n.event.Store(e)
	for {
		tail := l.tail.Load()
		next := tail.next.Load()
		if tail != l.tail.Load() {
			continue
		}
		if next != nil {
			// Tail fell behind; help it along.
			l.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			l.tail.CompareAndSwap(tail, n)
			q.length.Add(1)
			return
		}
	}
}

// reclaim clears a resolved slot (at most one thread wins the CAS; a
// cancelled slot adjusts the tombstone count) and advances the head
// past the dead node.
func (q *WaitQueue) reclaim(l *wqlist, head, next *wqnode, e *WaiterEvent) {
	if e != nil && next.event.CompareAndSwap(e, nil) && e.Cancelled() {
		q.tombs.Add(-1)
	}
	l.head.CompareAndSwap(head, next)
}

// Peek returns the first still-pending event without removing it,
// advancing the head past resolved entries as it goes. Returns nil
// when the queue holds no pending entries.
//
// Notifier protocol: Peek, then attempt the pending→set transition on
// the returned event; the winner of that CAS calls Consume. An event
// resolved to cancelled between Peek and Set simply loses the CAS and
// the notifier peeks again.
func (q *WaitQueue) Peek() *WaiterEvent {
	l := q.list.Load()
	if l == nil {
		return nil
	}
	for {
		head := l.head.Load()
		next := head.next.Load()
		if next == nil {
			return nil
		}
		e := next.event.Load()
		if e == nil || !e.Pending() {
			q.reclaim(l, head, next, e)
			continue
		}
		return e
	}
}

// Consume records that the caller won e's pending→set transition and
// the entry is therefore no longer waiting. The node itself is
// reclaimed lazily by later Peek calls.
func (q *WaitQueue) Consume(e *WaiterEvent) {
	q.length.Add(-1)
}

// Remove performs the self-removal half of the cancellation protocol:
// the caller won e's pending→cancelled transition, so its entry is a
// tombstone. Remove accounts for it and compacts eagerly under perfect
// fairness, or lazily once enough tombstones accumulate. Idempotent,
// and a no-op unless q currently holds the entry, so a waiter and a
// reparking notifier cannot double-account a racing removal.
func (q *WaitQueue) Remove(e *WaiterEvent) {
	if !e.Cancelled() || e.holder.Load() != q {
		return
	}
	if !e.removed.CompareAndSwap(false, true) {
		return
	}
	q.length.Add(-1)
	t := q.tombs.Add(1)
	if CurrentConfig().PerfectFairness || t >= compactThreshold {
		q.compact()
	}
}

// Transfer physically detaches e, still pending, if it is the head
// entry, so the caller can move it to another queue (condition
// variables repark waiters onto their lock this way). Returns false if
// e is no longer the head or was resolved concurrently.
func (q *WaitQueue) Transfer(e *WaiterEvent) bool {
	l := q.list.Load()
	if l == nil {
		return false
	}
	for {
		head := l.head.Load()
		next := head.next.Load()
		if next == nil {
			return false
		}
		cur := next.event.Load()
		if cur == nil || !cur.Pending() {
			q.reclaim(l, head, next, cur)
			continue
		}
		if cur != e {
			return false
		}
		if next.event.CompareAndSwap(e, nil) {
			l.head.CompareAndSwap(head, next)
			q.length.Add(-1)
			e.holder.Store(nil)
			return true
		}
	}
}

// compact unlinks interior tombstones. A single compactor runs at a
// time; Append, Peek and Consume stay lock-free throughout. The node the
// tail points at is never unlinked, keeping Append's invariants
// intact.
func (q *WaitQueue) compact() {
	l := q.list.Load()
	if l == nil || !q.cmu.tryLock() {
		return
	}
	defer q.cmu.unlock()
	prev := l.head.Load()
	for {
		n := prev.next.Load()
		if n == nil || n == l.tail.Load() {
			return
		}
		e := n.event.Load()
		if e != nil && e.Pending() {
			prev = n
			continue
		}
		if prev != l.head.Load() && prev.event.Load() == nil {
			// prev was consumed behind us; restart from the head
			// rather than stitching through a dead prefix.
			prev = l.head.Load()
			continue
		}
		next := n.next.Load()
		if next == nil {
			return
		}
		if e != nil {
			if !n.event.CompareAndSwap(e, nil) {
				continue
			}
			if e.Cancelled() {
				q.tombs.Add(-1)
			}
		}
		prev.next.CompareAndSwap(n, next)
	}
}

// Len returns the number of live entries.
func (q *WaitQueue) Len() int {
	if n := q.length.Load(); n > 0 {
		return int(n)
	}
	return 0
}
