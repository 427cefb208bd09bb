package valuestore

import (
	"testing"

	"github.com/korudelta/core/internal/canon"
	"github.com/stretchr/testify/require"
)

func TestInsertDeduplicates(t *testing.T) {
	s := New()

	id1, _, err := s.Insert(map[string]any{"x": 1})
	require.NoError(t, err)
	id2, _, err := s.Insert(map[string]any{"x": 1})
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, 1, s.Len())
}

func TestInsertDistinctValuesGrowStore(t *testing.T) {
	s := New()
	_, _, err := s.Insert(map[string]any{"x": 1})
	require.NoError(t, err)
	_, _, err = s.Insert(map[string]any{"x": 2})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
}

func TestGetReturnsCanonicalBytesMatchingHash(t *testing.T) {
	s := New()
	id, encoded, err := s.Insert(map[string]any{"x": 1})
	require.NoError(t, err)

	got, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, encoded, got)

	rehash := canon.Hash
	gotID, _, err := rehash(map[string]any{"x": 1})
	require.NoError(t, err)
	require.Equal(t, gotID, id)
}

func TestGetAbsent(t *testing.T) {
	s := New()
	_, ok := s.Get(canon.DistinctionID{})
	require.False(t, ok)
}
