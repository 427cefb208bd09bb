package wal

import (
	"bytes"
	"fmt"
	"os"

	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/ugorji/go/codec"
)

// Checkpoint is a point-in-time snapshot of the causal graph's head
// pointers, periodically written to checkpoint.bin. It exists so
// recovery doesn't have to replay the WAL from the beginning of time:
// load the latest checkpoint, then replay only the tail written after
// it.
//
// The snapshot holds full head VersionedValues, not bare write_id strings:
// the WAL prefix up to the checkpoint gets truncated away, so the head's
// content has to survive somewhere other than the log for get/history-head
// to keep working after a restart. Parent chains older than the
// checkpoint are not reconstructed from it: versions written before the
// checkpoint, other than the heads, are not recovered.
type Checkpoint struct {
	Heads map[string]model.VersionedValue
}

// SaveCheckpoint writes cp to path as MessagePack, using the same handle
// the WAL records and replication frames use — one wire format for
// everything this engine persists or sends.
func SaveCheckpoint(path string, cp Checkpoint) error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, model.WireHandle())
	if err := enc.Encode(cp); err != nil {
		return fmt.Errorf("%w: encode checkpoint: %v", kerr.ErrSerialization, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: write checkpoint: %v", kerr.ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename checkpoint: %v", kerr.ErrIO, err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint previously written by SaveCheckpoint.
// A missing file is not an error: a fresh data directory simply has no
// checkpoint yet, and recovery replays the WAL from its start.
func LoadCheckpoint(path string) (Checkpoint, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("%w: read checkpoint: %v", kerr.ErrIO, err)
	}

	var cp Checkpoint
	dec := codec.NewDecoder(bytes.NewReader(data), model.WireHandle())
	if err := dec.Decode(&cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("%w: decode checkpoint: %v", kerr.ErrSerialization, err)
	}
	return cp, true, nil
}
