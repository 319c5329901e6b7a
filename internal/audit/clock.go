// Package audit provides the monotonic clock and transition-ID generator
// that stamp every state-change response (spec §4.12).
package audit

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock produces strictly-ordered (nanosecond, sequence) pairs so that two
// calls landing in the same wall-clock nanosecond still yield distinct,
// increasing stamps. This is the hybrid logical clock called for in spec §9
// ("Monotonic IDs"): the externally visible timestamp is still a plain
// nanosecond count, but the sequence counter breaks ties when deciding
// whether one stamp is newer than another.
type Clock struct {
	seq  uint64
	last int64
}

// NewClock returns a ready-to-use Clock.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current time in nanoseconds since the Unix epoch and a
// tie-breaking sequence number, guaranteeing the pair is non-decreasing
// across concurrent callers.
func (c *Clock) Now() (nanos int64, seq uint64) {
	nanos = time.Now().UnixNano()
	for {
		prev := atomic.LoadInt64(&c.last)
		if nanos < prev {
			nanos = prev
		}
		if atomic.CompareAndSwapInt64(&c.last, prev, nanos) {
			break
		}
	}
	return nanos, atomic.AddUint64(&c.seq, 1)
}

// NewTransitionID builds a transition ID of the form
// "{source}-{purpose}-{nsTimestamp}" (spec §4.12).
func (c *Clock) NewTransitionID(source, purpose string) (id string, timestampNs int64) {
	timestampNs, _ = c.Now()
	return fmt.Sprintf("%s-%s-%d", source, purpose, timestampNs), timestampNs
}
