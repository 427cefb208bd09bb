// Package versionstore implements C2: the append-only write-addressed
// table mapping write_id -> VersionedValue. Entries are never overwritten
// or removed except under an explicit archival transition to the Deep
// tier (handled by the tiers package, not here).
package versionstore

import (
	"fmt"

	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/shard"
)

// Store is a sharded, append-only write_id -> VersionedValue table.
type Store struct {
	locks  shard.Locks
	shards [shard.Count]map[string]model.VersionedValue
}

// New creates an empty VersionStore.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = make(map[string]model.VersionedValue)
	}
	return s
}

// Put inserts v, failing with ErrDuplicateWrite if its write_id is already
// present — this is what makes apply_remote idempotent.
func (s *Store) Put(v model.VersionedValue) error {
	key := string(v.WriteID)
	idx := shard.Index(key)
	s.locks[idx].Lock()
	defer s.locks[idx].Unlock()

	if _, exists := s.shards[idx][key]; exists {
		return fmt.Errorf("%w: %s", kerr.ErrDuplicateWrite, v.WriteID)
	}
	s.shards[idx][key] = v
	return nil
}

// Get returns the VersionedValue for a write_id.
func (s *Store) Get(id string) (model.VersionedValue, bool) {
	idx := shard.Index(id)
	s.locks[idx].RLock()
	defer s.locks[idx].RUnlock()
	v, ok := s.shards[idx][id]
	return v, ok
}

// Has reports whether write_id is already known, without fetching the
// value — used by the replicator to drop already-applied WriteEvents
// cheaply.
func (s *Store) Has(id string) bool {
	idx := shard.Index(id)
	s.locks[idx].RLock()
	defer s.locks[idx].RUnlock()
	_, ok := s.shards[idx][id]
	return ok
}

// Archive removes a write_id from the live version store as part of a
// Deep-tier archival transition, where the body may be elided from the
// live path entirely. This is the one exception to append-only.
func (s *Store) Archive(id string) {
	idx := shard.Index(id)
	s.locks[idx].Lock()
	defer s.locks[idx].Unlock()
	delete(s.shards[idx], id)
}

// Len returns the number of versions currently held.
func (s *Store) Len() int {
	n := 0
	s.locks.AllRead(func(idx int) {
		n += len(s.shards[idx])
	})
	return n
}
