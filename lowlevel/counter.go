package lowlevel

import "sync/atomic"

// Counter is the non-negative token counter shared by the semaphore
// family. Take operations are CAS-validated so the value never goes
// below zero.
type Counter struct {
	v atomic.Int64
}

// Load returns the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// Add adds n (which may be negative in trusted engine paths) and
// returns the new value.
func (c *Counter) Add(n int64) int64 { return c.v.Add(n) }

// TryTake atomically subtracts n if at least n is available.
func (c *Counter) TryTake(n int64) bool {
	for {
		v := c.v.Load()
		if v < n {
			return false
		}
		if c.v.CompareAndSwap(v, v-n) {
			return true
		}
	}
}

// AddCapped atomically adds n only while the result stays at or below
// max; the bound check and the increment are one CAS, so concurrent
// adds cannot both slip past the cap on a stale read.
func (c *Counter) AddCapped(n, max int64) bool {
	for {
		v := c.v.Load()
		if v+n > max {
			return false
		}
		if c.v.CompareAndSwap(v, v+n) {
			return true
		}
	}
}
