package canon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeSortsKeysAndStripsFloatZero(t *testing.T) {
	out, err := Encode(map[string]any{"b": 1.0, "a": "x"})
	require.NoError(t, err)
	require.Equal(t, `{"a":"x","b":1}`, string(out))
}

func TestEncodeIsOrderIndependent(t *testing.T) {
	a, err := Encode(map[string]any{"age": 30, "name": "alice"})
	require.NoError(t, err)
	b, err := Encode(map[string]any{"name": "alice", "age": 30})
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestHashDeduplicatesIdenticalValues(t *testing.T) {
	id1, _, err := Hash(map[string]any{"x": 1})
	require.NoError(t, err)
	id2, _, err := Hash(map[string]any{"x": 1})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, _, err := Hash(map[string]any{"x": 2})
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestWriteIDRoundTrip(t *testing.T) {
	id, _, err := Hash(map[string]any{"x": 1})
	require.NoError(t, err)

	wid := NewWriteID(id, 1234567890)
	gotID, gotTS, err := wid.Split()
	require.NoError(t, err)
	require.Equal(t, id, gotID)
	require.EqualValues(t, 1234567890, gotTS)
}

func TestWriteIDDiffersForDifferentValuesAtSameTimestamp(t *testing.T) {
	idA, _, _ := Hash(map[string]any{"x": "a"})
	idB, _, _ := Hash(map[string]any{"x": "b"})
	wa := NewWriteID(idA, 100)
	wb := NewWriteID(idB, 100)
	require.NotEqual(t, wa, wb)
}
