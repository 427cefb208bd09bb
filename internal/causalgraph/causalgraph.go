// Package causalgraph implements C3: the parent-link DAG over write_ids,
// with one head pointer per logical key. It is the source of truth for
// write ordering — the memory tiers and query engine are caches over it,
// never the other way around.
//
// A write_id already embeds its created_at_nanos (canon.WriteID), so the
// graph can answer history/head_at purely from the parent chain without
// consulting VersionStore for timestamps.
package causalgraph

import (
	"fmt"

	"github.com/korudelta/core/internal/canon"
	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/shard"
)

// Graph is C3: sharded head pointers over a parent-link DAG of write_ids.
type Graph struct {
	headLocks shard.Locks
	heads     [shard.Count]map[string]canon.WriteID // key.String() -> head write_id

	parentLocks shard.Locks
	parents     [shard.Count]map[canon.WriteID]canon.WriteID // write_id -> previous_version ("" = root)
}

// New creates an empty CausalGraph.
func New() *Graph {
	g := &Graph{}
	for i := range g.heads {
		g.heads[i] = make(map[string]canon.WriteID)
	}
	for i := range g.parents {
		g.parents[i] = make(map[canon.WriteID]canon.WriteID)
	}
	return g
}

// Append records v's parent link and, if v is newer than the current head
// for its key (or there is no current head), advances the head pointer.
// Ties on created_at_nanos are broken lexicographically by write_id —
// deterministic across nodes, which is what makes LWW converge (spec
// §4.3/§4.9). Returns whether v became the new head.
func (g *Graph) Append(v model.VersionedValue) (becameHead bool, err error) {
	pidx := shard.Index(string(v.WriteID))
	g.parentLocks[pidx].Lock()
	if _, exists := g.parents[pidx][v.WriteID]; exists {
		g.parentLocks[pidx].Unlock()
		return false, fmt.Errorf("%w: %s", kerr.ErrDuplicateWrite, v.WriteID)
	}
	g.parents[pidx][v.WriteID] = v.PreviousVersion
	g.parentLocks[pidx].Unlock()

	keyStr := v.LogicalKey().String()
	hidx := shard.Index(keyStr)
	g.headLocks[hidx].Lock()
	defer g.headLocks[hidx].Unlock()

	current, hasHead := g.heads[hidx][keyStr]
	if !hasHead || lww(v.WriteID, v.CreatedAtNanos, current) {
		g.heads[hidx][keyStr] = v.WriteID
		return true, nil
	}
	return false, nil
}

// lww reports whether (candidateID, candidateTS) should win over
// currentHead under last-writer-wins: the pattern mirrors
// a vector-clock Compare (return one of "dominates"/"is dominated") but
// collapses to a total order over a single scalar pair instead of a
// per-node counter map, since the causal graph's head pointer has no
// concept of concurrent branches to merge — only one head survives.
func lww(candidateID canon.WriteID, candidateTS int64, currentHead canon.WriteID) bool {
	_, currentTS, err := currentHead.Split()
	if err != nil {
		return true
	}
	if candidateTS != currentTS {
		return candidateTS > currentTS
	}
	return currentHead.Less(candidateID)
}

// Head returns the current head write_id for a key.
func (g *Graph) Head(key model.Key) (canon.WriteID, bool) {
	keyStr := key.String()
	idx := shard.Index(keyStr)
	g.headLocks[idx].RLock()
	defer g.headLocks[idx].RUnlock()
	id, ok := g.heads[idx][keyStr]
	return id, ok
}

// Parent returns the previous_version link for a write_id ("" = root).
func (g *Graph) Parent(id canon.WriteID) (canon.WriteID, bool) {
	idx := shard.Index(string(id))
	g.parentLocks[idx].RLock()
	defer g.parentLocks[idx].RUnlock()
	parent, ok := g.parents[idx][id]
	return parent, ok
}

// History walks the parent chain from the current head to the root,
// returning write_ids newest-first.
func (g *Graph) History(key model.Key) ([]canon.WriteID, error) {
	head, ok := g.Head(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", kerr.ErrKeyNotFound, key.Namespace, key.Key)
	}

	var chain []canon.WriteID
	cur := head
	for {
		chain = append(chain, cur)
		parent, ok := g.Parent(cur)
		if !ok || parent == "" {
			break
		}
		cur = parent
	}
	return chain, nil
}

// HeadAt walks the parent chain looking for the newest write_id whose
// embedded created_at_nanos is <= t.
func (g *Graph) HeadAt(key model.Key, t int64) (canon.WriteID, error) {
	head, ok := g.Head(key)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", kerr.ErrKeyNotFound, key.Namespace, key.Key)
	}

	cur := head
	for {
		_, ts, err := cur.Split()
		if err != nil {
			return "", fmt.Errorf("corrupt write_id in causal graph: %w", err)
		}
		if ts <= t {
			return cur, nil
		}
		parent, ok := g.Parent(cur)
		if !ok || parent == "" {
			return "", fmt.Errorf("%w: %s/%s at %d", kerr.ErrNoVersionAt, key.Namespace, key.Key, t)
		}
		cur = parent
	}
}

// Keys returns every (namespace,key) that currently has a head pointer.
// Tombstone filtering is the caller's job (StorageEngine.ListKeys) since
// the graph doesn't know about values, only write_ids.
func (g *Graph) Keys(namespace string) []model.Key {
	var out []model.Key
	g.headLocks.AllRead(func(idx int) {
		for keyStr := range g.heads[idx] {
			k := splitKeyString(keyStr)
			if k.Namespace == namespace {
				out = append(out, k)
			}
		}
	})
	return out
}

// Namespaces returns every namespace with at least one head.
func (g *Graph) Namespaces() []string {
	seen := make(map[string]bool)
	g.headLocks.AllRead(func(idx int) {
		for keyStr := range g.heads[idx] {
			seen[splitKeyString(keyStr).Namespace] = true
		}
	})
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	return out
}

func splitKeyString(s string) model.Key {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return model.Key{Namespace: s[:i], Key: s[i+1:]}
		}
	}
	return model.Key{Key: s}
}
