package lowlevel

// The signal-safety context is a per-goroutine nesting counter. While
// it is non-zero for the calling goroutine, CurrentRuntime skips
// cooperative-runtime probes and answers with the plain goroutine
// adapter, whose operations are safe in signal handlers and
// finalizers.

const sigShardCount = 64

type sigShard struct {
	mu spinLock
	m  map[uint64]int
}

var sigShards [sigShardCount]*sigShard

var sigInit Once

func sigShardFor(gid uint64) *sigShard {
	sigInit.Do(func() {
		for i := range sigShards {
			sigShards[i] = &sigShard{m: make(map[uint64]int)}
		}
	})
	return sigShards[gid%sigShardCount]
}

// SignalToken undoes one EnterSignalContext call.
type SignalToken struct {
	gid uint64
}

// EnterSignalContext marks the calling goroutine as being inside a
// signal handler or finalizer. Calls nest.
func EnterSignalContext() SignalToken {
	gid := GoroutineID()
	s := sigShardFor(gid)
	s.mu.lock()
	s.m[gid]++
	s.mu.unlock()
	return SignalToken{gid: gid}
}

// Exit leaves the signal context entered by the matching
// EnterSignalContext call.
func (t SignalToken) Exit() {
	s := sigShardFor(t.gid)
	s.mu.lock()
	if n := s.m[t.gid]; n > 1 {
		s.m[t.gid] = n - 1
	} else {
		delete(s.m, t.gid)
	}
	s.mu.unlock()
}

// RuntimeProbingAllowed reports whether the calling goroutine may
// invoke cooperative runtime detection.
func RuntimeProbingAllowed() bool {
	gid := GoroutineID()
	s := sigShardFor(gid)
	s.mu.lock()
	n := s.m[gid]
	s.mu.unlock()
	return n == 0
}
