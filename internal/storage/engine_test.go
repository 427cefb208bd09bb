package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/stretchr/testify/require"
)

func openEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), model.OriginNode{1}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPutThenGetReturnsLastWrittenValue(t *testing.T) {
	e := openEngine(t)

	_, err := e.Put("u", "alice", map[string]any{"age": 30})
	require.NoError(t, err)
	v, err := e.Put("u", "alice", map[string]any{"age": 31})
	require.NoError(t, err)

	got, err := e.Get("u", "alice")
	require.NoError(t, err)
	require.Equal(t, v.WriteID, got.WriteID)
	require.JSONEq(t, `{"age":31}`, string(got.Value))
}

func TestHistoryOrderedNewestFirst(t *testing.T) {
	e := openEngine(t)

	v1, err := e.Put("u", "alice", map[string]any{"age": 30})
	require.NoError(t, err)
	v2, err := e.Put("u", "alice", map[string]any{"age": 31})
	require.NoError(t, err)
	v3, err := e.Put("u", "alice", map[string]any{"age": 32})
	require.NoError(t, err)

	hist, err := e.History("u", "alice")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, []string{string(v3.WriteID), string(v2.WriteID), string(v1.WriteID)},
		[]string{string(hist[0].WriteID), string(hist[1].WriteID), string(hist[2].WriteID)})
}

func TestGetAtReturnsVersionCurrentAtTime(t *testing.T) {
	e := openEngine(t)

	v1, err := e.Put("u", "alice", map[string]any{"age": 30})
	require.NoError(t, err)
	_, err = e.Put("u", "alice", map[string]any{"age": 31})
	require.NoError(t, err)

	got, err := e.GetAt("u", "alice", v1.CreatedAtNanos)
	require.NoError(t, err)
	require.Equal(t, v1.WriteID, got.WriteID)

	_, err = e.GetAt("u", "alice", v1.CreatedAtNanos-1)
	require.Error(t, err)
	require.True(t, errors.Is(err, kerr.ErrNoVersionAt))
}

func TestDeleteThenGetReturnsKeyNotFound(t *testing.T) {
	e := openEngine(t)

	_, err := e.Put("n", "k", 1)
	require.NoError(t, err)
	_, err = e.Delete("n", "k")
	require.NoError(t, err)

	_, err = e.Get("n", "k")
	require.True(t, errors.Is(err, kerr.ErrKeyNotFound))

	hist, err := e.History("n", "k")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.True(t, hist[0].IsTombstone())

	require.NotContains(t, e.ListKeys("n"), "k")
	require.Contains(t, e.AllKeys("n"), "k")
}

func TestIdenticalValuesDedupeInValueStore(t *testing.T) {
	e := openEngine(t)

	_, err := e.Put("n", "a", map[string]any{"x": 1})
	require.NoError(t, err)
	_, err = e.Put("n", "b", map[string]any{"x": 1})
	require.NoError(t, err)

	require.Equal(t, 1, e.values.Len())
	require.Equal(t, 2, e.versions.Len())
}

func TestApplyRemoteIsIdempotentOnWriteID(t *testing.T) {
	e := openEngine(t)

	v, err := e.Put("n", "k", 1)
	require.NoError(t, err)

	remote := v
	require.NoError(t, e.ApplyRemote(remote))
	require.NoError(t, e.ApplyRemote(remote))

	hist, err := e.History("n", "k")
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestCheckpointThenRecoverPreservesHeads(t *testing.T) {
	dir := t.TempDir()
	node := model.OriginNode{2}

	e, err := Open(dir, node)
	require.NoError(t, err)
	_, err = e.Put("u", "alice", map[string]any{"age": 30})
	require.NoError(t, err)
	_, err = e.Put("u", "alice", map[string]any{"age": 31})
	require.NoError(t, err)
	require.NoError(t, e.Checkpoint())
	v3, err := e.Put("u", "alice", map[string]any{"age": 32})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e2, err := Open(dir, node)
	require.NoError(t, err)
	defer e2.Close()

	got, err := e2.Get("u", "alice")
	require.NoError(t, err)
	require.Equal(t, v3.WriteID, got.WriteID)
	require.JSONEq(t, `{"age":32}`, string(got.Value))
}

func TestSecondOpenOfSameDirFailsWithAlreadyOpen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, model.OriginNode{3})
	require.NoError(t, err)
	defer e.Close()

	_, err = Open(dir, model.OriginNode{3})
	require.Error(t, err)
	require.True(t, errors.Is(err, kerr.ErrAlreadyOpen))
}

func TestTierPublisherCalledOnPut(t *testing.T) {
	pub := &recordingPublisher{}
	e := openEngine(t, WithTierPublisher(pub))

	v, err := e.Put("n", "k", 1)
	require.NoError(t, err)
	require.Len(t, pub.calls, 1)
	require.Equal(t, v.WriteID, pub.calls[0].WriteID)
}

type recordingPublisher struct {
	calls []model.VersionedValue
}

func (r *recordingPublisher) Publish(_ model.Key, v model.VersionedValue) {
	r.calls = append(r.calls, v)
}

func TestWalFileExistsAfterPut(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, model.OriginNode{4})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Put("n", "k", 1)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, walFileName))
	require.NoError(t, statErr)
}
