package tiers

import "sync"

// coldTier is the epoch ring: new demotions land in the current epoch;
// a rotation advances current and hands the bumped-out epoch's contents
// to the caller for a fitness pass.
type coldTier struct {
	mu      sync.Mutex
	epochs  []map[string]*entry
	current int
}

func newColdTier(epochCount int) *coldTier {
	if epochCount < 1 {
		epochCount = 1
	}
	c := &coldTier{epochs: make([]map[string]*entry, epochCount)}
	for i := range c.epochs {
		c.epochs[i] = make(map[string]*entry)
	}
	return c
}

func (c *coldTier) add(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[c.current][e.key.String()] = e
}

func (c *coldTier) get(key string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, epoch := range c.epochs {
		if e, ok := epoch[key]; ok {
			return e, true
		}
	}
	return nil, false
}

func (c *coldTier) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, epoch := range c.epochs {
		delete(epoch, key)
	}
}

// rotate advances the current epoch and returns everything that was in
// the epoch now being bumped out, clearing it for reuse. The caller
// evaluates the returned entries against the fitness function.
func (c *coldTier) rotate() []*entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := (c.current + 1) % len(c.epochs)
	bumped := c.epochs[next]
	c.epochs[next] = make(map[string]*entry)
	c.current = next

	out := make([]*entry, 0, len(bumped))
	for _, e := range bumped {
		out = append(out, e)
	}
	return out
}

// snapshot returns every entry currently held across all epochs, used by
// the off-cadence distillation pass.
func (c *coldTier) snapshot() []*entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*entry
	for _, epoch := range c.epochs {
		for _, e := range epoch {
			out = append(out, e)
		}
	}
	return out
}

func (c *coldTier) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, epoch := range c.epochs {
		n += len(epoch)
	}
	return n
}
