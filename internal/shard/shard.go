// Package shard provides the fixed-width sharded-map primitive reused by
// ValueStore, VersionStore, CausalGraph and the Warm memory tier: a small
// number of independently-locked buckets so concurrent readers never
// contend across keys that happen to land in different shards, while
// writers only serialise with other writers touching the same shard.
package shard

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Count is the number of shards every sharded map in the engine uses:
// 64 shards, each with its own read-write lock.
const Count = 64

// Index returns which of the Count shards key belongs to.
func Index(key string) int {
	return int(xxhash.Sum64String(key) % Count)
}

// Locks is one read-write lock per shard. It does not itself hold any
// values; callers keep their own per-shard value maps next to it and lock
// the matching shard around each access.
type Locks [Count]sync.RWMutex

// For locks the shard owning key and runs fn under it; write selects
// read-lock vs write-lock.
func (l *Locks) For(key string, write bool, fn func()) {
	idx := Index(key)
	if write {
		l[idx].Lock()
		defer l[idx].Unlock()
	} else {
		l[idx].RLock()
		defer l[idx].RUnlock()
	}
	fn()
}

// AllWrite runs fn once per shard under a write lock, in shard order. Used for
// whole-store scans (list_keys, list_namespaces, snapshotting) where a
// fully consistent point-in-time view matters more than read concurrency.
func (l *Locks) AllWrite(fn func(idx int)) {
	for i := range l {
		l[i].Lock()
		fn(i)
		l[i].Unlock()
	}
}

// AllRead is the read-locked equivalent of AllWrite.
func (l *Locks) AllRead(fn func(idx int)) {
	for i := range l {
		l[i].RLock()
		fn(i)
		l[i].RUnlock()
	}
}
