package tiers

import (
	"github.com/korudelta/core/internal/shard"
)

// warmTier is an unordered pool: a sharded map (the same sharding
// primitive C1–C3 use) with no internal ordering beyond each entry's
// last_access field. Overflow eviction scans every shard for the
// globally oldest entry — a full LRU structure would overclaim an
// ordering guarantee this tier deliberately doesn't need.
type warmTier struct {
	locks    shard.Locks
	shards   [shard.Count]map[string]*entry
	capacity int
}

func newWarmTier(capacity int) *warmTier {
	w := &warmTier{capacity: capacity}
	for i := range w.shards {
		w.shards[i] = make(map[string]*entry)
	}
	return w
}

func (w *warmTier) add(e *entry) {
	key := e.key.String()
	idx := shard.Index(key)
	w.locks[idx].Lock()
	w.shards[idx][key] = e
	w.locks[idx].Unlock()
}

func (w *warmTier) get(key string) (*entry, bool) {
	idx := shard.Index(key)
	w.locks[idx].RLock()
	defer w.locks[idx].RUnlock()
	e, ok := w.shards[idx][key]
	return e, ok
}

func (w *warmTier) remove(key string) {
	idx := shard.Index(key)
	w.locks[idx].Lock()
	delete(w.shards[idx], key)
	w.locks[idx].Unlock()
}

func (w *warmTier) len() int {
	n := 0
	w.locks.AllRead(func(idx int) {
		n += len(w.shards[idx])
	})
	return n
}

// evictOldest finds and removes the entry with the smallest last_access
// across every shard, for the caller to move to Cold on overflow.
func (w *warmTier) evictOldest() (*entry, bool) {
	var oldest *entry
	w.locks.AllWrite(func(idx int) {
		for _, e := range w.shards[idx] {
			if oldest == nil || e.lastAccess < oldest.lastAccess {
				oldest = e
			}
		}
	})
	if oldest == nil {
		return nil, false
	}
	idx := shard.Index(oldest.key.String())
	w.locks[idx].Lock()
	delete(w.shards[idx], oldest.key.String())
	w.locks[idx].Unlock()
	return oldest, true
}
