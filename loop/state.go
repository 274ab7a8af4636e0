package loop

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// State represents the lifecycle of a Loop.
//
// State machine:
//
//	StateAwake → StateRunning            [Run]
//	StateRunning ⇄ StateSleeping         [idle poll, CAS both ways]
//	StateRunning/StateSleeping → StateTerminating [Shutdown or ctx]
//	StateTerminating → StateTerminated   [run loop drained]
//
// Temporary states move by CAS; Terminated is stored unconditionally
// once the run loop exits.
type State uint64

const (
	// StateAwake: created, not yet running.
	StateAwake State = iota
	// StateRunning: actively processing submitted tasks.
	StateRunning
	// StateSleeping: blocked waiting for work.
	StateSleeping
	// StateTerminating: shutdown requested, draining.
	StateTerminating
	// StateTerminated: fully stopped; terminal.
	StateTerminated
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state cell padded to its own cache line so
// state polls by submitters never false-share with the loop's hot
// fields.
type fastState struct {
	_ cpu.CacheLinePad
	v atomic.Uint64
	_ cpu.CacheLinePad
}

func (s *fastState) load() State { return State(s.v.Load()) }

func (s *fastState) store(to State) { s.v.Store(uint64(to)) }

func (s *fastState) transition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// terminalOrTerminating reports whether shutdown has begun.
func (s *fastState) terminalOrTerminating() bool {
	st := s.load()
	return st == StateTerminating || st == StateTerminated
}
