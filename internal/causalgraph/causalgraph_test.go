package causalgraph

import (
	"testing"

	"github.com/korudelta/core/internal/canon"
	"github.com/korudelta/core/internal/model"
	"github.com/stretchr/testify/require"
)

func mkVersion(t *testing.T, ns, key string, val any, ts int64, prev canon.WriteID) model.VersionedValue {
	t.Helper()
	id, encoded, err := canon.Hash(val)
	require.NoError(t, err)
	return model.VersionedValue{
		WriteID:         canon.NewWriteID(id, ts),
		DistinctionID:   id,
		Namespace:       ns,
		Key:             key,
		Value:           encoded,
		PreviousVersion: prev,
		CreatedAtNanos:  ts,
	}
}

func TestAppendAdvancesHeadOnNewerWrite(t *testing.T) {
	g := New()
	k := model.Key{Namespace: "u", Key: "alice"}

	v1 := mkVersion(t, "u", "alice", map[string]any{"age": 30}, 100, "")
	became, err := g.Append(v1)
	require.NoError(t, err)
	require.True(t, became)

	v2 := mkVersion(t, "u", "alice", map[string]any{"age": 31}, 200, v1.WriteID)
	became, err = g.Append(v2)
	require.NoError(t, err)
	require.True(t, became)

	head, ok := g.Head(k)
	require.True(t, ok)
	require.Equal(t, v2.WriteID, head)
}

func TestHistoryNewestFirst(t *testing.T) {
	g := New()
	k := model.Key{Namespace: "u", Key: "alice"}

	v1 := mkVersion(t, "u", "alice", map[string]any{"age": 30}, 100, "")
	v2 := mkVersion(t, "u", "alice", map[string]any{"age": 31}, 200, v1.WriteID)
	v3 := mkVersion(t, "u", "alice", map[string]any{"age": 32}, 300, v2.WriteID)

	for _, v := range []model.VersionedValue{v1, v2, v3} {
		_, err := g.Append(v)
		require.NoError(t, err)
	}

	history, err := g.History(k)
	require.NoError(t, err)
	require.Equal(t, []canon.WriteID{v3.WriteID, v2.WriteID, v1.WriteID}, history)
}

func TestHeadAtReturnsLatestAtOrBeforeTimestamp(t *testing.T) {
	g := New()
	k := model.Key{Namespace: "u", Key: "alice"}

	v1 := mkVersion(t, "u", "alice", map[string]any{"age": 30}, 100, "")
	v2 := mkVersion(t, "u", "alice", map[string]any{"age": 31}, 200, v1.WriteID)
	_, err := g.Append(v1)
	require.NoError(t, err)
	_, err = g.Append(v2)
	require.NoError(t, err)

	got, err := g.HeadAt(k, 150)
	require.NoError(t, err)
	require.Equal(t, v1.WriteID, got)

	_, err = g.HeadAt(k, 50)
	require.Error(t, err)
}

func TestConcurrentPutsConvergeOnGreaterTimestamp(t *testing.T) {
	g := New()
	k := model.Key{Namespace: "n", Key: "k"}

	vA := mkVersion(t, "n", "k", map[string]any{"v": "a"}, 100, "")
	vB := mkVersion(t, "n", "k", map[string]any{"v": "b"}, 200, "")

	_, err := g.Append(vB)
	require.NoError(t, err)
	_, err = g.Append(vA)
	require.NoError(t, err)

	head, ok := g.Head(k)
	require.True(t, ok)
	require.Equal(t, vB.WriteID, head)
}
