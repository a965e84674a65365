package engine

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers.
// Clock implements it, as does testutil.DeterministicClock.
type Sequencer interface {
	Next() int64
}

// Clock is the default Sequencer: an atomic counter starting at 0.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments and returns the sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last number handed out, or 0.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
