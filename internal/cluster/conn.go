package cluster

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/korudelta/core/internal/model"
	"github.com/rs/zerolog"
)

// sendQueueCapacity is the bounded MPMC replication queue size per peer.
const sendQueueCapacity = 4096

// backpressureTimeout is how long enqueue will wait for room before
// dropping the frame and logging.
const backpressureTimeout = 500 * time.Millisecond

// peerConn owns one live TCP connection to a peer, in either direction,
// and the single outbound frame queue that both WriteEvent broadcast and
// gossip Heartbeats share.
type peerConn struct {
	nodeID [16]byte
	addr   string
	conn   net.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newPeerConn(nodeID [16]byte, addr string, conn net.Conn) *peerConn {
	return &peerConn{
		nodeID: nodeID,
		addr:   addr,
		conn:   conn,
		send:   make(chan []byte, sendQueueCapacity),
		done:   make(chan struct{}),
	}
}

// enqueue offers a pre-encoded frame to the send queue, dropping it (and
// logging) if the queue stays full past backpressureTimeout.
func (pc *peerConn) enqueue(frame []byte, logger zerolog.Logger) {
	select {
	case pc.send <- frame:
	case <-time.After(backpressureTimeout):
		logger.Warn().Str("peer", pc.addr).Msg("replication queue full, dropping frame")
	case <-pc.done:
	}
}

// senderLoop drains the send queue onto the wire until the connection
// closes.
func (pc *peerConn) senderLoop() error {
	for {
		select {
		case frame, ok := <-pc.send:
			if !ok {
				return nil
			}
			if _, err := pc.conn.Write(frame); err != nil {
				return err
			}
		case <-pc.done:
			return nil
		}
	}
}

// receiverLoop reads frames off the wire and dispatches them to handle
// until the connection closes or a read fails.
func (pc *peerConn) receiverLoop(handle func(Tag, []byte) error) error {
	for {
		f, err := readFrame(pc.conn)
		if err != nil {
			return err
		}
		if err := handle(f.Tag, f.Body); err != nil {
			return err
		}
	}
}

func (pc *peerConn) close() {
	pc.closeOnce.Do(func() {
		close(pc.done)
	})
	_ = pc.conn.Close()
}

// Engine is the subset of StorageEngine the replicator and gossip sync
// path need: applying remote writes and reading back history to answer a
// peer's SyncRequest. storage.Engine satisfies this directly.
type Engine interface {
	ApplyRemote(v model.VersionedValue) error
	ListNamespaces() []string
	ListKeys(namespace string) []string
	AllKeys(namespace string) []string
	Get(namespace, key string) (model.VersionedValue, error)
	History(namespace, key string) ([]model.VersionedValue, error)
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, "tcp", addr)
}
