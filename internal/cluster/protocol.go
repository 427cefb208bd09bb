// Package cluster implements C8 (PeerSet + Gossip) and C9 (Replicator):
// membership discovery over a gossiped digest and asynchronous,
// at-least-once replication of writes to every known peer. Both share
// one length-prefixed, tagged TCP wire protocol — a gossiping Heartbeat
// and a replicated WriteEvent travel the same kind of frame over the
// same per-peer connection.
package cluster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/ugorji/go/codec"
)

// Tag identifies a wire message's body shape.
type Tag byte

const (
	TagHello       Tag = 0x01
	TagHelloAck    Tag = 0x02
	TagWriteEvent  Tag = 0x03
	TagSyncRequest Tag = 0x04
	TagSnapshot    Tag = 0x05
	TagHeartbeat   Tag = 0x06
)

// Hello/HelloAck advertise the node's bound listen address, never the
// ephemeral source port of the TCP connection itself: the address other
// peers should dial is the bound address, not whatever source port this
// particular connection happened to use.
type Hello struct {
	NodeID     []byte `codec:"n"`
	ListenAddr string `codec:"a"`
}

type HelloAck struct {
	NodeID     []byte          `codec:"n"`
	ListenAddr string          `codec:"a"`
	Digest     []MembershipRow `codec:"d"`
}

// MembershipRow is one peer's compact gossip digest entry: node_id,
// addr, epoch, and how long ago this node last heard from it.
type MembershipRow struct {
	NodeID           []byte `codec:"n"`
	Addr             string `codec:"a"`
	Epoch            uint64 `codec:"e"`
	LastHeartbeatAge int64  `codec:"h"` // nanoseconds, relative to send time
}

type WriteEvent struct {
	Value model.VersionedValue `codec:"v"`
}

// SyncRequest asks a peer to stream history since SinceWriteID (empty
// means "from the beginning") — the join-time full sync.
type SyncRequest struct {
	SinceWriteID string `codec:"s"`
}

// Snapshot is one chunk of a SyncRequest reply, up to N entries per
// frame, streamed across as many frames as the backlog requires.
type Snapshot struct {
	Values []model.VersionedValue `codec:"v"`
	More   bool                   `codec:"m"`
}

type Heartbeat struct {
	Digest []MembershipRow `codec:"d"`
}

// SnapshotChunkSize is N: the default batch size for SyncRequest replies.
const SnapshotChunkSize = 256

// frame is one decoded wire message.
type frame struct {
	Tag  Tag
	Body []byte
}

func wireHandle() *codec.MsgpackHandle {
	return model.WireHandle()
}

// encodeFrame serialises a tagged payload into the length-prefixed wire
// format: total_len:u32-LE | tag:u8 | msgpack(body).
func encodeFrame(tag Tag, payload any) ([]byte, error) {
	var body bytes.Buffer
	if err := codec.NewEncoder(&body, wireHandle()).Encode(payload); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", kerr.ErrSerialization, err)
	}

	totalLen := 1 + body.Len()
	out := make([]byte, 4+totalLen)
	binary.LittleEndian.PutUint32(out[0:4], uint32(totalLen))
	out[4] = byte(tag)
	copy(out[5:], body.Bytes())
	return out, nil
}

// readFrame reads one frame from r.
func readFrame(r io.Reader) (frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return frame{}, err
	}
	totalLen := binary.LittleEndian.Uint32(lenBuf[:])
	if totalLen == 0 || totalLen > maxFrameLen {
		return frame{}, fmt.Errorf("%w: frame length %d out of range", kerr.ErrIO, totalLen)
	}

	buf := make([]byte, totalLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return frame{}, err
	}
	return frame{Tag: Tag(buf[0]), Body: buf[1:]}, nil
}

const maxFrameLen = 64 << 20

func decodeBody(body []byte, out any) error {
	dec := codec.NewDecoder(bytes.NewReader(body), wireHandle())
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode frame body: %v", kerr.ErrSerialization, err)
	}
	return nil
}
