package dispatch

import (
	"sync/atomic"
	"time"
)

// Clock is the coarse monotonic millisecond source for all scheduling
// decisions. The dispatcher refreshes it once at the top of every tick;
// everything else reads the cached value.
type Clock struct {
	base  time.Time
	ms    atomic.Int64
	ready atomic.Bool
}

// NewClock creates a clock anchored at the current instant. Now() reads
// zero until the first Refresh.
func NewClock() *Clock {
	return &Clock{base: time.Now()}
}

// Refresh samples the monotonic clock and caches the reading.
func (c *Clock) Refresh() int64 {
	ms := time.Since(c.base).Milliseconds()
	c.ms.Store(ms)
	c.ready.Store(true)
	return ms
}

// Now returns the reading cached by the last Refresh. It may lag real time
// by up to one tick.
func (c *Clock) Now() int64 {
	return c.ms.Load()
}

// Ready reports whether the clock has been refreshed at least once.
func (c *Clock) Ready() bool {
	return c.ready.Load()
}
