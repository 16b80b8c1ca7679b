package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping event arrival order.
//
// Every event the Run loop accepts gets a strictly increasing seq number.
// The event log orders by seq, never by wall-clock timestamps, so a replay
// feeds the builder in exactly the observed order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the Engine's single-writer design means only one goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
