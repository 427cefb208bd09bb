package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/korudelta/core/internal/canon"
	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/shard"
	"github.com/korudelta/core/internal/versionstore"
	"github.com/korudelta/core/internal/wal"
)

// VersionStore exposes the engine's append-only version store so a
// wired memory tier can resolve elided/rehydrated bodies without the
// engine duplicating that lookup path.
func (e *Engine) VersionStore() *versionstore.Store {
	return e.versions
}

// ValueCount and VersionCount expose C1/C2's sizes directly, for callers
// that need to observe deduplication (distinct values vs. total writes).
func (e *Engine) ValueCount() int   { return e.values.Len() }
func (e *Engine) VersionCount() int { return e.versions.Len() }

// Put hashes value, links it under the key's current head, and durably
// appends it before returning. It is atomic with respect to readers of
// the same key: the whole sequence runs under that key's shard lock, so
// a concurrent get for the same key either sees the old head or the new
// one, never a half-applied write.
func (e *Engine) Put(namespace, key string, value any) (model.VersionedValue, error) {
	k := model.Key{Namespace: namespace, Key: key}
	if err := k.Validate(); err != nil {
		return model.VersionedValue{}, err
	}

	idx := shard.Index(k.String())
	e.keyLocks[idx].Lock()
	defer e.keyLocks[idx].Unlock()

	id, encoded, err := canon.Hash(value)
	if err != nil {
		return model.VersionedValue{}, fmt.Errorf("%w: %v", kerr.ErrSerialization, err)
	}

	prev, _ := e.graph.Head(k)
	ts := e.clock.next()
	v := model.VersionedValue{
		WriteID:         canon.NewWriteID(id, ts),
		DistinctionID:   id,
		Namespace:       namespace,
		Key:             key,
		Value:           encoded,
		PreviousVersion: prev,
		CreatedAtNanos:  ts,
		OriginNode:      e.nodeID,
	}

	if err := e.appendAndApply(v); err != nil {
		return model.VersionedValue{}, err
	}

	e.tiers.Publish(k, v)
	e.notifier.Notify(v)
	return v, nil
}

// Delete writes a tombstone. Deleting a non-existent key is idempotent
// success — a tombstone with no prior version — so the local path never
// has to special-case "key doesn't exist" differently from
// apply_remote's duplicate-delete tolerance.
func (e *Engine) Delete(namespace, key string) (model.VersionedValue, error) {
	return e.Put(namespace, key, nil)
}

// appendAndApply runs put steps 4–5: durable WAL append, then the same
// ingest path recovery uses to populate C1–C3.
func (e *Engine) appendAndApply(v model.VersionedValue) error {
	tag := wal.TagPut
	if v.IsTombstone() {
		tag = wal.TagDelete
	}
	if err := e.log.Append(wal.Entry{Tag: tag, Value: v}); err != nil {
		return err
	}
	return e.ingest(v)
}

// Get returns the current head value for a key, surfacing KeyNotFound if
// the head is a tombstone.
func (e *Engine) Get(namespace, key string) (model.VersionedValue, error) {
	k := model.Key{Namespace: namespace, Key: key}
	head, ok := e.graph.Head(k)
	if !ok {
		return model.VersionedValue{}, fmt.Errorf("%w: %s/%s", kerr.ErrKeyNotFound, namespace, key)
	}
	v, ok := e.versions.Get(string(head))
	if !ok {
		return model.VersionedValue{}, fmt.Errorf("%w: %s/%s head %s missing from version store", kerr.ErrKeyNotFound, namespace, key, head)
	}
	if v.IsTombstone() {
		return model.VersionedValue{}, fmt.Errorf("%w: %s/%s", kerr.ErrKeyNotFound, namespace, key)
	}
	return v, nil
}

// History returns every version of a key, newest first, including any
// tombstone at the head.
func (e *Engine) History(namespace, key string) ([]model.VersionedValue, error) {
	k := model.Key{Namespace: namespace, Key: key}
	ids, err := e.graph.History(k)
	if err != nil {
		return nil, err
	}
	out := make([]model.VersionedValue, 0, len(ids))
	for _, id := range ids {
		v, ok := e.versions.Get(string(id))
		if !ok {
			return nil, fmt.Errorf("%w: %s missing from version store", kerr.ErrKeyNotFound, id)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetAt returns the version that was current at or before timestamp t.
func (e *Engine) GetAt(namespace, key string, t int64) (model.VersionedValue, error) {
	k := model.Key{Namespace: namespace, Key: key}
	id, err := e.graph.HeadAt(k, t)
	if err != nil {
		return model.VersionedValue{}, err
	}
	v, ok := e.versions.Get(string(id))
	if !ok {
		return model.VersionedValue{}, fmt.Errorf("%w: %s missing from version store", kerr.ErrKeyNotFound, id)
	}
	return v, nil
}

// ListKeys returns every key in namespace whose head is not a tombstone.
func (e *Engine) ListKeys(namespace string) []string {
	var out []string
	for _, k := range e.graph.Keys(namespace) {
		head, ok := e.graph.Head(k)
		if !ok {
			continue
		}
		v, ok := e.versions.Get(string(head))
		if !ok || v.IsTombstone() {
			continue
		}
		out = append(out, k.Key)
	}
	sort.Strings(out)
	return out
}

// AllKeys returns every key in namespace that has ever been written,
// including ones whose head is now a tombstone. Unlike ListKeys, this
// is what a join-time snapshot must enumerate: a deleted key still has
// history a joining peer needs to converge on.
func (e *Engine) AllKeys(namespace string) []string {
	keys := e.graph.Keys(namespace)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Key)
	}
	sort.Strings(out)
	return out
}

// ListNamespaces returns every namespace with at least one known key.
func (e *Engine) ListNamespaces() []string {
	ns := e.graph.Namespaces()
	sort.Strings(ns)
	return ns
}

// ApplyRemote applies a VersionedValue received from a peer through the
// exact same path as a local put, minus the replicator notification —
// it is idempotent on write_id. WAL durability still
// applies: a remote write this node accepted must survive this node's
// own crash too.
func (e *Engine) ApplyRemote(v model.VersionedValue) error {
	k := v.LogicalKey()
	idx := shard.Index(k.String())
	e.keyLocks[idx].Lock()
	defer e.keyLocks[idx].Unlock()

	if e.versions.Has(string(v.WriteID)) {
		return nil
	}
	if err := e.appendAndApply(v); err != nil {
		if errors.Is(err, kerr.ErrDuplicateWrite) {
			return nil
		}
		return err
	}
	if head, ok := e.graph.Head(k); ok && head == v.WriteID {
		e.tiers.Publish(k, v)
	}
	return nil
}

// Checkpoint snapshots every current head into checkpoint.bin and
// truncates the WAL prefix. It must not run concurrently with
// itself; callers (the background ticker) are expected to serialise calls.
func (e *Engine) Checkpoint() error {
	heads := make(map[string]model.VersionedValue)
	for _, ns := range e.graph.Namespaces() {
		for _, k := range e.graph.Keys(ns) {
			id, ok := e.graph.Head(k)
			if !ok {
				continue
			}
			v, ok := e.versions.Get(string(id))
			if !ok {
				continue
			}
			heads[k.String()] = v
		}
	}

	if err := wal.SaveCheckpoint(e.checkpointPath(), wal.Checkpoint{Heads: heads}); err != nil {
		return err
	}
	return e.log.Reset()
}

func (e *Engine) checkpointPath() string {
	return e.dataDir + "/" + checkpointFileName
}

// Close releases the WAL file handle and the data directory lock.
func (e *Engine) Close() error {
	if err := e.log.Close(); err != nil {
		return err
	}
	return e.lock.Release()
}
