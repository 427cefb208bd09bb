// Package valuestore implements C1: the content-addressed blob table
// mapping distinction_id -> canonical JSON value. It is the engine's
// deduplication layer — two puts of an identical value occupy one entry
// here no matter how many times the value is written.
package valuestore

import (
	"github.com/korudelta/core/internal/canon"
	"github.com/korudelta/core/internal/shard"
)

// Store is a sharded, content-addressed value table. Safe for concurrent
// use: many readers per shard, one writer per shard.
type Store struct {
	locks  shard.Locks
	shards [shard.Count]map[canon.DistinctionID][]byte
}

// New creates an empty ValueStore.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = make(map[canon.DistinctionID][]byte)
	}
	return s
}

// Insert computes the canonical hash of value, inserting the canonical
// encoding only if that hash is not already present, and returns the hash
// either way. The second return is the canonical JSON bytes, which callers
// (StorageEngine) need regardless of whether this was a fresh insert.
func (s *Store) Insert(value any) (canon.DistinctionID, []byte, error) {
	id, encoded, err := canon.Hash(value)
	if err != nil {
		return canon.DistinctionID{}, nil, err
	}
	s.InsertEncoded(id, encoded)
	return id, encoded, nil
}

// InsertEncoded inserts a pre-hashed, pre-encoded value — used by WAL
// replay and replication, where the canonical bytes and distinction_id
// already travelled with the VersionedValue and recomputing the hash would
// be redundant work on every recovery/sync.
func (s *Store) InsertEncoded(id canon.DistinctionID, encoded []byte) {
	idx := shard.Index(id.String())
	s.locks[idx].Lock()
	defer s.locks[idx].Unlock()
	if _, exists := s.shards[idx][id]; !exists {
		// Copy so the caller's buffer can't mutate stored state later.
		cp := make([]byte, len(encoded))
		copy(cp, encoded)
		s.shards[idx][id] = cp
	}
}

// Get returns the canonical JSON bytes for id, or ok=false if absent.
func (s *Store) Get(id canon.DistinctionID) (value []byte, ok bool) {
	idx := shard.Index(id.String())
	s.locks[idx].RLock()
	defer s.locks[idx].RUnlock()
	v, exists := s.shards[idx][id]
	return v, exists
}

// Len returns the total number of distinct values stored. Used by tests
// that verify deduplication: writing the same value twice must grow
// VersionStore but not ValueStore.
func (s *Store) Len() int {
	n := 0
	s.locks.AllRead(func(idx int) {
		n += len(s.shards[idx])
	})
	return n
}
