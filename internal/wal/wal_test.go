package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/korudelta/core/internal/canon"
	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/stretchr/testify/require"
)

func mkEntry(t *testing.T, tag Tag, key string, ts int64) Entry {
	t.Helper()
	id, encoded, err := canon.Hash(map[string]any{"key": key, "ts": ts})
	require.NoError(t, err)
	return Entry{
		Tag: tag,
		Value: model.VersionedValue{
			WriteID:        canon.NewWriteID(id, ts),
			DistinctionID:  id,
			Namespace:      "ns",
			Key:            key,
			Value:          encoded,
			CreatedAtNanos: ts,
		},
	}
}

func TestAppendThenReplayReturnsSameEntries(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	defer w.Close()

	e1 := mkEntry(t, TagPut, "a", 100)
	e2 := mkEntry(t, TagPut, "b", 200)
	require.NoError(t, w.Append(e1))
	require.NoError(t, w.Append(e2))

	var got []Entry
	require.NoError(t, w.Replay(func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Equal(t, []Entry{e1, e2}, got)
}

func TestAppendBatchPersistsAll(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	defer w.Close()

	entries := []Entry{
		mkEntry(t, TagPut, "a", 1),
		mkEntry(t, TagPut, "b", 2),
		mkEntry(t, TagDelete, "c", 3),
	}
	require.NoError(t, w.AppendBatch(entries))

	var got []Entry
	require.NoError(t, w.Replay(func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Equal(t, entries, got)
}

func TestReplayTruncatesCorruptTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	w, err := Open(path)
	require.NoError(t, err)

	good := mkEntry(t, TagPut, "a", 1)
	require.NoError(t, w.Append(good))
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0, 1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := Open(path)
	require.NoError(t, err)
	defer w2.Close()

	var got []Entry
	replayErr := w2.Replay(func(e Entry) error {
		got = append(got, e)
		return nil
	})
	require.Error(t, replayErr)
	require.True(t, errors.Is(replayErr, kerr.ErrWALCorruption))
	require.Equal(t, []Entry{good}, got)

	goodRec, err := encodeRecord(good)
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, len(goodRec), fi.Size())
}

func TestResetEmptiesLog(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(mkEntry(t, TagPut, "a", 1)))
	require.NoError(t, w.Reset())

	var got []Entry
	require.NoError(t, w.Replay(func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Empty(t, got)
}

func TestLockRejectsSecondOpen(t *testing.T) {
	dir := t.TempDir()
	l1, err := AcquireLock(dir)
	require.NoError(t, err)
	defer l1.Release()

	_, err = AcquireLock(dir)
	require.Error(t, err)
	require.True(t, errors.Is(err, kerr.ErrAlreadyOpen))
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.bin")

	_, ok, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.False(t, ok)

	cp := Checkpoint{Heads: map[string]model.VersionedValue{
		"ns\x00a": mkEntry(t, TagPut, "a", 1).Value,
		"ns\x00b": mkEntry(t, TagPut, "b", 2).Value,
	}}
	require.NoError(t, SaveCheckpoint(path, cp))

	loaded, ok, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cp, loaded)
}
