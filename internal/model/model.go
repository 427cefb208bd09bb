// Package model holds the data types shared by every layer of the engine:
// the logical Key, the VersionedValue unit of history, and the codec used
// to give both a single canonical wire/disk representation.
package model

import (
	"fmt"
	"strings"

	"github.com/korudelta/core/internal/canon"
	"github.com/korudelta/core/internal/kerr"
)

// InternalNamespacePrefix marks namespaces reserved for engine-internal
// state, e.g. "_auth".
const InternalNamespacePrefix = "_"

// Key is a logical (namespace, key) address. Both parts must be non-empty
// UTF-8.
type Key struct {
	Namespace string
	Key       string
}

func (k Key) String() string {
	return k.Namespace + "\x00" + k.Key
}

// Validate checks the invariant that both namespace and key are non-empty.
func (k Key) Validate() error {
	if k.Namespace == "" || k.Key == "" {
		return fmt.Errorf("%w: namespace=%q key=%q", kerr.ErrInvalidKey, k.Namespace, k.Key)
	}
	return nil
}

// IsInternal reports whether this key lives in a reserved internal namespace.
func (k Key) IsInternal() bool {
	return strings.HasPrefix(k.Namespace, InternalNamespacePrefix)
}

// OriginNode is the opaque 16-byte node identifier carried on every write.
type OriginNode [16]byte

func (o OriginNode) String() string {
	return fmt.Sprintf("%x", o[:])
}

// VersionedValue is the unit of history. It is created once by
// put/delete and never mutated in place.
type VersionedValue struct {
	WriteID         canon.WriteID      `codec:"write_id"`
	DistinctionID   canon.DistinctionID `codec:"distinction_id"`
	Namespace       string             `codec:"namespace"`
	Key             string             `codec:"key"`
	Value           []byte             `codec:"value"` // canonical JSON, nil means untouched tombstone marker only in transit
	PreviousVersion canon.WriteID      `codec:"previous_version"` // empty string means "root"
	CreatedAtNanos  int64              `codec:"created_at_nanos"`
	OriginNode      OriginNode         `codec:"origin_node"`
}

// IsTombstone reports whether this version represents a delete: the
// canonical encoding of JSON null is the literal bytes "null".
func (v VersionedValue) IsTombstone() bool {
	return string(v.Value) == "null"
}

// HasParent reports whether PreviousVersion points at an earlier write.
func (v VersionedValue) HasParent() bool {
	return v.PreviousVersion != ""
}

// LogicalKey returns the (namespace, key) address this version belongs to.
func (v VersionedValue) LogicalKey() Key {
	return Key{Namespace: v.Namespace, Key: v.Key}
}

// NewerThan implements the last-writer-wins ordering used wherever two
// versions of the same key need a winner: greater created_at_nanos wins;
// ties broken by the lexicographically greater write_id.
func (v VersionedValue) NewerThan(other VersionedValue) bool {
	if v.CreatedAtNanos != other.CreatedAtNanos {
		return v.CreatedAtNanos > other.CreatedAtNanos
	}
	return other.WriteID.Less(v.WriteID)
}
