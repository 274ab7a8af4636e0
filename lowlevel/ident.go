package lowlevel

import "runtime"

// TaskID identifies a task within a runtime. The pair is stable for
// the lifetime of the task and is what ownership-aware primitives
// (locks, capacity limiters) key on.
type TaskID struct {
	Runtime string
	ID      uint64
}

// Zero reports whether t is the zero identity.
func (t TaskID) Zero() bool {
	return t.Runtime == "" && t.ID == 0
}

// GoroutineID returns the id of the calling goroutine, recovered from
// the stack header. The format "goroutine N [status]:" is not covered
// by the Go 1 compatibility promise but has been stable since Go 1.0
// and is relied on by several tracing libraries.
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Skip "goroutine " and parse digits up to the following space.
	const prefix = len("goroutine ")
	var id uint64
	for i := prefix; i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
