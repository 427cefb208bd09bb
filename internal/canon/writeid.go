package canon

import (
	"fmt"
	"strconv"
	"strings"
)

// WriteID is "{distinction_id}_{created_at_nanos}", with the timestamp
// written in base 36. It is globally unique by construction: two writes
// of the identical value share a distinction_id but never a
// created_at_nanos from the same node, and a cross-node collision needs
// the same value written at the same nanosecond on two nodes.
type WriteID string

// NewWriteID builds a WriteID from a content hash and a timestamp.
func NewWriteID(id DistinctionID, createdAtNanos int64) WriteID {
	return WriteID(fmt.Sprintf("%s_%s", id.String(), strconv.FormatInt(createdAtNanos, 36)))
}

// Split decomposes a WriteID back into its distinction_id and timestamp.
func (w WriteID) Split() (DistinctionID, int64, error) {
	s := string(w)
	idx := strings.LastIndexByte(s, '_')
	if idx < 0 {
		return DistinctionID{}, 0, fmt.Errorf("canon: malformed write_id %q", s)
	}
	id, err := ParseDistinctionID(s[:idx])
	if err != nil {
		return DistinctionID{}, 0, err
	}
	ts, err := strconv.ParseInt(s[idx+1:], 36, 64)
	if err != nil {
		return DistinctionID{}, 0, fmt.Errorf("canon: malformed write_id timestamp in %q: %w", s, err)
	}
	return id, ts, nil
}

// Less implements the lexicographic write_id tie-break used by the causal
// graph and the LWW replication rule when two writes share a
// created_at_nanos.
func (w WriteID) Less(other WriteID) bool {
	return string(w) < string(other)
}
