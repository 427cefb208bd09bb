package versionstore

import (
	"errors"
	"testing"

	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestPutThenGet(t *testing.T) {
	s := New()
	v := model.VersionedValue{WriteID: "abc_1", CreatedAtNanos: 1}
	require.NoError(t, s.Put(v))

	got, ok := s.Get("abc_1")
	require.True(t, ok)
	require.Equal(t, v, got)
}

func TestPutDuplicateWriteIDFails(t *testing.T) {
	s := New()
	v := model.VersionedValue{WriteID: "abc_1", CreatedAtNanos: 1}
	require.NoError(t, s.Put(v))
	err := s.Put(v)
	require.Error(t, err)
	require.True(t, errors.Is(err, kerr.ErrDuplicateWrite))
}

func TestLenGrowsPerPut(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(model.VersionedValue{WriteID: "a_1"}))
	require.NoError(t, s.Put(model.VersionedValue{WriteID: "b_1"}))
	require.Equal(t, 2, s.Len())
}

func TestArchiveRemovesEntry(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(model.VersionedValue{WriteID: "a_1"}))
	s.Archive("a_1")
	_, ok := s.Get("a_1")
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}
