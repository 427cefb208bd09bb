package model

import (
	"bytes"

	"github.com/korudelta/core/internal/canon"
	"github.com/ugorji/go/codec"
)

// wireHandle is the single MessagePack handle shared by the WAL and the
// replication wire protocol: message bodies use the same canonical
// serialisation as WAL payloads wherever both apply.
var wireHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}()

// WireHandle exposes the shared MessagePack handle so other packages
// (the WAL's checkpoint file, the replicator's membership digests) encode
// with the same settings instead of constructing their own handle.
func WireHandle() *codec.MsgpackHandle {
	return wireHandle
}

// EncodeWire serialises a VersionedValue into the engine's fixed
// MessagePack framing, used for both WAL records and replication frames.
func EncodeWire(v VersionedValue) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, wireHandle)
	if err := enc.Encode(wireValue{
		WriteID:         string(v.WriteID),
		DistinctionID:   v.DistinctionID[:],
		Namespace:       v.Namespace,
		Key:             v.Key,
		Value:           v.Value,
		PreviousVersion: string(v.PreviousVersion),
		CreatedAtNanos:  v.CreatedAtNanos,
		OriginNode:      v.OriginNode[:],
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWire is the inverse of EncodeWire.
func DecodeWire(data []byte) (VersionedValue, error) {
	var w wireValue
	dec := codec.NewDecoder(bytes.NewReader(data), wireHandle)
	if err := dec.Decode(&w); err != nil {
		return VersionedValue{}, err
	}

	var v VersionedValue
	v.WriteID = canon.WriteID(w.WriteID)
	copy(v.DistinctionID[:], w.DistinctionID)
	v.Namespace = w.Namespace
	v.Key = w.Key
	v.Value = w.Value
	v.PreviousVersion = canon.WriteID(w.PreviousVersion)
	v.CreatedAtNanos = w.CreatedAtNanos
	copy(v.OriginNode[:], w.OriginNode)
	return v, nil
}

// wireValue is the flat, codec-friendly mirror of VersionedValue: the
// codec-tagged struct fields on VersionedValue use project-internal types
// (canon.WriteID, canon.DistinctionID, OriginNode) that codec would
// otherwise have to reflect through on every encode/decode, so the wire
// shape sticks to strings/[]byte/int64.
type wireValue struct {
	WriteID         string `codec:"w"`
	DistinctionID   []byte `codec:"d"`
	Namespace       string `codec:"n"`
	Key             string `codec:"k"`
	Value           []byte `codec:"v"`
	PreviousVersion string `codec:"p"`
	CreatedAtNanos  int64  `codec:"t"`
	OriginNode      []byte `codec:"o"`
}
