// Package integration runs the end-to-end scenarios from the engine's
// testable-properties section against the composed storage, query and
// cluster layers rather than any single package in isolation.
package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/korudelta/core/internal/cluster"
	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/query"
	"github.com/korudelta/core/internal/storage"
	"github.com/korudelta/core/internal/tiers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openEngine(t *testing.T) *storage.Engine {
	t.Helper()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	eng, err := storage.Open(t.TempDir(), model.OriginNode(id), storage.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func asAge(t *testing.T, v model.VersionedValue) int {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(v.Value, &m))
	age, ok := m["age"].(float64)
	require.True(t, ok)
	return int(age)
}

// S1 — Version history.
func TestScenarioVersionHistory(t *testing.T) {
	eng := openEngine(t)

	_, err := eng.Put("u", "alice", map[string]any{"age": 30})
	require.NoError(t, err)
	t1 := time.Now().UnixNano()
	time.Sleep(time.Millisecond)

	_, err = eng.Put("u", "alice", map[string]any{"age": 31})
	require.NoError(t, err)
	_, err = eng.Put("u", "alice", map[string]any{"age": 32})
	require.NoError(t, err)

	hist, err := eng.History("u", "alice")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, []int{32, 31, 30}, []int{asAge(t, hist[0]), asAge(t, hist[1]), asAge(t, hist[2])})

	at, err := eng.GetAt("u", "alice", t1)
	require.NoError(t, err)
	require.Equal(t, 30, asAge(t, at))
}

// S2 — Deduplication.
func TestScenarioDeduplication(t *testing.T) {
	eng := openEngine(t)

	v0Count, v1Count := eng.ValueCount(), eng.VersionCount()

	first, err := eng.Put("n", "k", map[string]any{"x": float64(1)})
	require.NoError(t, err)
	second, err := eng.Put("n", "k", map[string]any{"x": float64(1)})
	require.NoError(t, err)

	require.Equal(t, v1Count+2, eng.VersionCount())
	require.Equal(t, v0Count+1, eng.ValueCount())

	hist, err := eng.History("n", "k")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.NotEqual(t, first.WriteID, second.WriteID)
	require.Equal(t, first.DistinctionID, second.DistinctionID)
}

// S3 — Tombstone.
func TestScenarioTombstone(t *testing.T) {
	eng := openEngine(t)

	_, err := eng.Put("n", "k", float64(1))
	require.NoError(t, err)
	_, err = eng.Delete("n", "k")
	require.NoError(t, err)

	_, err = eng.Get("n", "k")
	require.ErrorIs(t, err, kerr.ErrKeyNotFound)

	hist, err := eng.History("n", "k")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.True(t, hist[0].IsTombstone())

	require.NotContains(t, eng.ListKeys("n"), "k")
}

// S4 — Query.
func TestScenarioQuery(t *testing.T) {
	eng := openEngine(t)
	ages := []int{24, 30, 30, 35, 40}
	for i, age := range ages {
		_, err := eng.Put("u", string(rune('a'+i)), map[string]any{"age": float64(age)})
		require.NoError(t, err)
	}

	qe := query.New(eng)
	res, err := qe.Execute("u", query.Query{
		Filters: []query.Filter{{Field: "age", Op: query.OpGe, Value: float64(30)}},
		Sort:    []query.SortKey{{Field: "age", Desc: true}},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Equal(t, 4, res.TotalCount)
	require.Len(t, res.Items, 2)
	require.Equal(t, float64(40), res.Items[0]["age"])
	require.Equal(t, float64(35), res.Items[1]["age"])
}

// S5 — Crash recovery.
func TestScenarioCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	nodeID := model.OriginNode(id)

	eng, err := storage.Open(dir, nodeID, storage.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	heads := make(map[string]model.VersionedValue, 100)
	for i := 0; i < 100; i++ {
		key := uuid.New().String()
		v, err := eng.Put("n", key, map[string]any{"i": float64(i)})
		require.NoError(t, err)
		heads[key] = v
	}

	// Simulate kill -9: no Checkpoint call first, so recovery must replay
	// the full WAL tail rather than load a checkpoint snapshot. Close
	// itself only releases the lock and file handle, the same as the OS
	// would on process exit — it does not snapshot anything.
	require.NoError(t, eng.Close())

	reopened, err := storage.Open(dir, nodeID, storage.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer reopened.Close()

	for key, want := range heads {
		got, err := reopened.Get("n", key)
		require.NoError(t, err)
		require.Equal(t, want.DistinctionID, got.DistinctionID)
		require.Equal(t, want.WriteID, got.WriteID)
	}

	th, err := tiers.New(tiers.DefaultConfig(), dir+"/deep.db", reopened.VersionStore(), reopened, zerolog.Nop())
	require.NoError(t, err)
	defer th.Close()
	for key := range heads {
		_, hit := th.Get(model.Key{Namespace: "n", Key: key})
		require.False(t, hit, "recovered entries must start outside Hot until a fresh tier access promotes them")
	}
}

// S6 — Two-node live sync.
func TestScenarioTwoNodeLiveSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idA, err := uuid.NewRandom()
	require.NoError(t, err)
	idB, err := uuid.NewRandom()
	require.NoError(t, err)

	clusterCfg := cluster.DefaultConfig()
	clusterCfg.GossipInterval = 20 * time.Millisecond
	clusterCfg.DeadAfter = 2 * time.Second
	clusterCfg.EvictAfter = 5 * time.Second

	// cluster.New needs an Engine and storage.Open needs a Notifier, each
	// wanting the other — built nil-engine first, wired via SetEngine once
	// both exist, matching cmd/korudeltad's own construction order.
	clusterA := cluster.New([16]byte(idA), "", clusterCfg, nil, zerolog.Nop())
	engA, err := storage.Open(t.TempDir(), model.OriginNode(idA), storage.WithLogger(zerolog.Nop()), storage.WithNotifier(clusterA))
	require.NoError(t, err)
	defer engA.Close()
	clusterA.SetEngine(engA)

	require.NoError(t, clusterA.Listen("127.0.0.1:0"))
	addrA := clusterA.ListenAddr()
	go clusterA.Serve(ctx)
	defer clusterA.Close()

	for i := 0; i < 10; i++ {
		_, err := engA.Put("u", uuid.New().String(), map[string]any{"i": float64(i)})
		require.NoError(t, err)
	}

	clusterB := cluster.New([16]byte(idB), "", clusterCfg, nil, zerolog.Nop())
	engB, err := storage.Open(t.TempDir(), model.OriginNode(idB), storage.WithLogger(zerolog.Nop()), storage.WithNotifier(clusterB))
	require.NoError(t, err)
	defer engB.Close()
	clusterB.SetEngine(engB)

	require.NoError(t, clusterB.Listen("127.0.0.1:0"))
	go clusterB.Serve(ctx)
	defer clusterB.Close()

	require.NoError(t, clusterB.Join(ctx, addrA))

	require.Eventually(t, func() bool {
		return len(engB.ListKeys("u")) == 10
	}, 2*time.Second, 20*time.Millisecond)

	for _, key := range engA.AllKeys("u") {
		ha, err := engA.History("u", key)
		require.NoError(t, err)
		hb, err := engB.History("u", key)
		require.NoError(t, err)
		if diff := cmp.Diff(writeIDs(ha), writeIDs(hb)); diff != "" {
			t.Fatalf("history for key %q diverged between nodes (-A +B):\n%s", key, diff)
		}
	}

	concurrentKey := "shared"
	vA, err := engA.Put("u", concurrentKey, map[string]any{"from": "A"})
	require.NoError(t, err)
	vB, err := engB.Put("u", concurrentKey, map[string]any{"from": "B"})
	require.NoError(t, err)

	var winner model.VersionedValue
	if vA.NewerThan(vB) {
		winner = vA
	} else {
		winner = vB
	}

	require.Eventually(t, func() bool {
		ga, errA := engA.Get("u", concurrentKey)
		gb, errB := engB.Get("u", concurrentKey)
		return errA == nil && errB == nil &&
			ga.WriteID == winner.WriteID && gb.WriteID == winner.WriteID
	}, 2*time.Second, 20*time.Millisecond)

	histA, err := engA.History("u", concurrentKey)
	require.NoError(t, err)
	histB, err := engB.History("u", concurrentKey)
	require.NoError(t, err)
	require.Len(t, histA, 2)
	require.Len(t, histB, 2)
	if diff := cmp.Diff(writeIDs(histA), writeIDs(histB)); diff != "" {
		t.Fatalf("concurrent-write history diverged between nodes (-A +B):\n%s", diff)
	}
}

// writeIDs extracts write_id in order, the stable basis for a structural
// diff of two nodes' history slices (the values themselves carry origin
// node and other per-write fields that legitimately differ in encoding
// but not in identity).
func writeIDs(hist []model.VersionedValue) []string {
	out := make([]string, len(hist))
	for i, v := range hist {
		out[i] = string(v.WriteID)
	}
	return out
}
