package tiers

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// hotTier is the Hot tier: a fixed-capacity LRU keyed by key.String(),
// with overflow routed to Warm via the eviction callback: the
// oldest-touched entry is moved to Warm rather than dropped.
type hotTier struct {
	cache *lru.Cache[string, *entry]
}

func newHotTier(capacity int, onEvict func(string, *entry)) *hotTier {
	cache, err := lru.NewWithEvict[string, *entry](capacity, onEvict)
	if err != nil {
		// Only possible cause is a non-positive capacity, which is a
		// construction-time configuration bug, not a runtime condition.
		panic("tiers: invalid hot tier capacity: " + err.Error())
	}
	return &hotTier{cache: cache}
}

func (h *hotTier) add(key string, e *entry) {
	h.cache.Add(key, e)
}

func (h *hotTier) get(key string) (*entry, bool) {
	e, ok := h.cache.Get(key)
	if !ok {
		return nil, false
	}
	return e, true
}

func (h *hotTier) remove(key string) {
	h.cache.Remove(key)
}

func (h *hotTier) len() int {
	return h.cache.Len()
}
