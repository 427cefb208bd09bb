package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
)

// Tag identifies what an Entry's payload represents. A single byte is
// plenty: the WAL only ever records one of a handful of mutation kinds,
// each framed as tag:u8 followed by msgpack(VersionedValue).
type Tag byte

const (
	// TagPut records a put/apply_remote of a VersionedValue.
	TagPut Tag = 0x01
	// TagDelete records a tombstone write (still a VersionedValue, with
	// IsTombstone() true — the WAL doesn't need a distinct shape for it).
	TagDelete Tag = 0x02
)

// Entry is one WAL record: a tagged VersionedValue.
type Entry struct {
	Tag   Tag
	Value model.VersionedValue
}

// headerLen is the fixed 8-byte prefix on every record: a u32-LE length of
// the payload, followed by a u32-LE CRC32 of that same payload.
const headerLen = 8

// encodeRecord serialises entry into a single framed record ready to be
// written to the log file.
func encodeRecord(e Entry) ([]byte, error) {
	body, err := model.EncodeWire(e.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerr.ErrSerialization, err)
	}
	payload := make([]byte, 1+len(body))
	payload[0] = byte(e.Tag)
	copy(payload[1:], body)

	rec := make([]byte, headerLen+len(payload))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(rec[4:8], crc32.ChecksumIEEE(payload))
	copy(rec[headerLen:], payload)
	return rec, nil
}

// readRecord reads and validates one framed record from r, returning the
// total number of bytes the record occupies on disk alongside it (the
// caller uses this to know exactly where to truncate on corruption). It
// returns io.EOF (unwrapped) when the stream ends cleanly on a record
// boundary, and errCorrupt when the header or CRC indicates a torn/corrupt
// tail write — the caller (Replay) treats that as "truncate here", not a
// fatal error.
func readRecord(r io.Reader) (Entry, int64, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Entry{}, 0, errCorrupt
		}
		return Entry{}, 0, err
	}

	payloadLen := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])
	if payloadLen == 0 || payloadLen > maxRecordLen {
		return Entry{}, 0, errCorrupt
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Entry{}, 0, errCorrupt
	}
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return Entry{}, 0, errCorrupt
	}

	tag := Tag(payload[0])
	v, err := model.DecodeWire(payload[1:])
	if err != nil {
		return Entry{}, 0, errCorrupt
	}
	return Entry{Tag: tag, Value: v}, int64(headerLen + payloadLen), nil
}

// maxRecordLen bounds a single record's payload so a torn length prefix at
// the tail of the file (a crash mid-write) can't be misread as a huge
// allocation request — it gets classified as corruption instead.
const maxRecordLen = 64 << 20
