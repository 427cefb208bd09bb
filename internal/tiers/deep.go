package tiers

import (
	"bytes"
	"fmt"

	"github.com/korudelta/core/internal/canon"
	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/versionstore"
	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"
)

// deepTier is the disk-resident archive: one bbolt bucket per namespace,
// keyed by the logical key, holding that key's archived head. A body may
// be elided down to just distinction_id,
// requiring re-hydration from VersionStore on access.
type deepTier struct {
	db *bolt.DB
}

func newDeepTier(path string) (*deepTier, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open deep archive: %v", kerr.ErrIO, err)
	}
	return &deepTier{db: db}, nil
}

// deepRecord is what actually lives in bbolt: a full body when archival
// just happened, or body=nil once the body has been elided and only
// distinction_id remains for re-hydration.
type deepRecord struct {
	DistinctionID []byte `codec:"d"`
	Body          []byte `codec:"b"`
	Namespace     string `codec:"n"`
	Key           string `codec:"k"`
	CreatedAt     int64  `codec:"t"`
	PreviousWrite string `codec:"p"`
	OriginNode    []byte `codec:"o"`
}

func (d *deepTier) put(v model.VersionedValue) error {
	rec := deepRecord{
		DistinctionID: v.DistinctionID[:],
		Body:          v.Value,
		Namespace:     v.Namespace,
		Key:           v.Key,
		CreatedAt:     v.CreatedAtNanos,
		PreviousWrite: string(v.PreviousVersion),
		OriginNode:    v.OriginNode[:],
	}
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, model.WireHandle()).Encode(rec); err != nil {
		return fmt.Errorf("%w: encode deep record: %v", kerr.ErrSerialization, err)
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(v.Namespace))
		if err != nil {
			return fmt.Errorf("%w: deep bucket: %v", kerr.ErrIO, err)
		}
		return b.Put([]byte(v.Key), buf.Bytes())
	})
}

// get re-hydrates the head for key, re-fetching the body from versions if
// the archived record already elided it.
func (d *deepTier) get(key model.Key, versions *versionstore.Store) (model.VersionedValue, bool) {
	var rec deepRecord
	found := false
	_ = d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key.Namespace))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key.Key))
		if raw == nil {
			return nil
		}
		if err := codec.NewDecoder(bytes.NewReader(raw), model.WireHandle()).Decode(&rec); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found {
		return model.VersionedValue{}, false
	}

	var id canon.DistinctionID
	copy(id[:], rec.DistinctionID)
	var origin model.OriginNode
	copy(origin[:], rec.OriginNode)

	body := rec.Body
	if body == nil {
		writeID := canon.NewWriteID(id, rec.CreatedAt)
		if stored, ok := versions.Get(string(writeID)); ok {
			body = stored.Value
		}
	}

	return model.VersionedValue{
		WriteID:         canon.NewWriteID(id, rec.CreatedAt),
		DistinctionID:   id,
		Namespace:       rec.Namespace,
		Key:             rec.Key,
		Value:           body,
		PreviousVersion: canon.WriteID(rec.PreviousWrite),
		CreatedAtNanos:  rec.CreatedAt,
		OriginNode:      origin,
	}, true
}

func (d *deepTier) remove(key model.Key) {
	_ = d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key.Namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key.Key))
	})
}

func (d *deepTier) close() error {
	return d.db.Close()
}
