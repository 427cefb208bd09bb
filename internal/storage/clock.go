package storage

import (
	"sync"
	"time"
)

// clock hands out created_at_nanos values that are strictly increasing
// for this node, even across calls that land in the same wall-clock
// nanosecond or across a backward clock step. Without this, two puts to
// different keys on a fast path could tie on created_at_nanos and only
// the write_id tie-break would separate them — harmless for correctness
// but it would make per-node history ordering depend on string
// comparison instead of time.
type clock struct {
	mu   sync.Mutex
	last int64
}

func (c *clock) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// observe advances the clock past an externally-sourced timestamp (a
// remote write applied through apply_remote), so this node's own next
// local write still sorts after anything it has seen, remote or local.
func (c *clock) observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.last {
		c.last = ts
	}
}
