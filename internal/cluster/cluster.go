package cluster

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/rs/zerolog"
)

// Config holds C8/C9's tunable cadences.
type Config struct {
	GossipInterval    time.Duration // T_g, default 2s
	FanoutK           int           // k, default 3
	DeadAfter         time.Duration // T_dead, default 10s
	EvictAfter        time.Duration // T_evict, default 30s
	ReconnectMaxDelay time.Duration // backoff cap, default 30s
	SnapshotChunkSize int           // N, default 256
}

// DefaultConfig returns the cluster's stated defaults.
func DefaultConfig() Config {
	return Config{
		GossipInterval:    2 * time.Second,
		FanoutK:           3,
		DeadAfter:         10 * time.Second,
		EvictAfter:        30 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		SnapshotChunkSize: SnapshotChunkSize,
	}
}

// Cluster is C8+C9: the gossiped membership table and the replicator that
// rides the same per-peer connections.
type Cluster struct {
	nodeID     [16]byte
	listenAddr string
	cfg        Config
	engine     Engine
	peers      *PeerSet
	logger     zerolog.Logger

	mu       sync.Mutex
	conns    map[string]*peerConn // hex(node_id) -> live connection
	dialing  map[string]bool      // addrs currently being (re)connected
	listener net.Listener
	epoch    uint64
}

// New builds a Cluster bound to nodeID. listenAddr is the address other
// nodes should dial to reach this one; it must already be externally
// routable — pinning the advertised address is the caller's job.
func New(nodeID [16]byte, listenAddr string, cfg Config, engine Engine, logger zerolog.Logger) *Cluster {
	return &Cluster{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		cfg:        cfg,
		engine:     engine,
		peers:      NewPeerSet(),
		logger:     logger,
		conns:      make(map[string]*peerConn),
		dialing:    make(map[string]bool),
		epoch:      uint64(time.Now().Unix()),
	}
}

// Peers exposes the membership table, mostly for observability/tests.
func (c *Cluster) Peers() *PeerSet { return c.peers }

// ListenAddr returns the address this cluster's listener is actually
// bound to — useful when New was given an empty/ephemeral listenAddr
// and the real bound port is only known after Listen.
func (c *Cluster) ListenAddr() string {
	if c.listener != nil {
		return c.listener.Addr().String()
	}
	return c.listenAddr
}

// SetEngine wires the storage engine this cluster replicates against.
// The usual construction order has a cycle (the engine wants this
// Cluster as its Notifier, this Cluster wants the engine to answer
// SyncRequest/apply WriteEvents), so New accepts nil and callers wire
// the engine in afterward, before Serve/Run are started.
func (c *Cluster) SetEngine(engine Engine) {
	c.engine = engine
}

// Listen binds the TCP listener; Serve then accepts inbound peer
// connections on it. It must be called before Join or Run.
func (c *Cluster) Listen(bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %v", kerr.ErrIO, bindAddr, err)
	}
	c.listener = ln
	if c.listenAddr == "" {
		c.listenAddr = ln.Addr().String()
	}
	return nil
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed.
func (c *Cluster) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = c.listener.Close()
	}()

	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("%w: accept: %v", kerr.ErrIO, err)
			}
		}
		go c.acceptInbound(conn)
	}
}

func (c *Cluster) acceptInbound(conn net.Conn) {
	f, err := readFrame(conn)
	if err != nil || f.Tag != TagHello {
		_ = conn.Close()
		return
	}
	var hello Hello
	if err := decodeBody(f.Body, &hello); err != nil {
		_ = conn.Close()
		return
	}
	var remoteID [16]byte
	copy(remoteID[:], hello.NodeID)

	c.peers.Upsert(remoteID, hello.ListenAddr, 1, time.Now())

	ack, err := encodeFrame(TagHelloAck, HelloAck{
		NodeID:     c.nodeID[:],
		ListenAddr: c.listenAddr,
		Digest:     c.peers.Digest(time.Now()),
	})
	if err != nil {
		_ = conn.Close()
		return
	}
	if _, err := conn.Write(ack); err != nil {
		_ = conn.Close()
		return
	}

	pc := newPeerConn(remoteID, hello.ListenAddr, conn)
	c.register(pc)
	c.runConn(pc, false)
}

// connectPeer dials addr, performs the Hello/HelloAck handshake, and
// registers the resulting connection. It returns that registered
// connection, which carries the remote node_id.
func (c *Cluster) connectPeer(ctx context.Context, addr string) (*peerConn, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerr.ErrPeerUnreachable, err)
	}

	hello, err := encodeFrame(TagHello, Hello{NodeID: c.nodeID[:], ListenAddr: c.listenAddr})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Write(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", kerr.ErrPeerUnreachable, err)
	}

	f, err := readFrame(conn)
	if err != nil || f.Tag != TagHelloAck {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: handshake failed with %s", kerr.ErrPeerUnreachable, addr)
	}
	var ack HelloAck
	if err := decodeBody(f.Body, &ack); err != nil {
		_ = conn.Close()
		return nil, err
	}
	var remoteID [16]byte
	copy(remoteID[:], ack.NodeID)

	c.peers.Upsert(remoteID, addr, 1, time.Now())
	c.mergeDigest(ack.Digest, time.Now())

	pc := newPeerConn(remoteID, addr, conn)
	c.register(pc)
	return pc, nil
}

// mergeDigest folds a remote digest into the peer set, skipping the row
// that describes this node itself.
func (c *Cluster) mergeDigest(rows []MembershipRow, receivedAt time.Time) {
	others := make([]MembershipRow, 0, len(rows))
	for _, row := range rows {
		if !bytes.Equal(row.NodeID, c.nodeID[:]) {
			others = append(others, row)
		}
	}
	c.peers.MergeDigest(others, receivedAt)
}

func (c *Cluster) register(pc *peerConn) {
	c.mu.Lock()
	c.conns[hex.EncodeToString(pc.nodeID[:])] = pc
	c.mu.Unlock()
	c.peers.SetState(pc.nodeID, Steady)
}

func (c *Cluster) unregister(pc *peerConn) {
	c.mu.Lock()
	if c.conns[hex.EncodeToString(pc.nodeID[:])] == pc {
		delete(c.conns, hex.EncodeToString(pc.nodeID[:]))
	}
	c.mu.Unlock()
	c.peers.SetState(pc.nodeID, Suspect)
}

// runConn drives a registered connection's sender and receiver loops
// until it breaks, then cleans up. If reconnect is true (we dialed this
// peer ourselves), the caller's reconnect loop is responsible for redialing.
func (c *Cluster) runConn(pc *peerConn, _ bool) {
	defer func() {
		pc.close()
		c.unregister(pc)
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- pc.senderLoop() }()
	go func() {
		errCh <- pc.receiverLoop(func(tag Tag, body []byte) error {
			return c.handleFrame(pc, tag, body)
		})
	}()
	<-errCh
}

func (c *Cluster) handleFrame(from *peerConn, tag Tag, body []byte) error {
	switch tag {
	case TagWriteEvent:
		var we WriteEvent
		if err := decodeBody(body, &we); err != nil {
			return err
		}
		if err := c.engine.ApplyRemote(we.Value); err != nil {
			c.logger.Warn().Err(err).Msg("apply_remote failed for replicated write")
		}
		return nil
	case TagHeartbeat:
		var hb Heartbeat
		if err := decodeBody(body, &hb); err != nil {
			return err
		}
		c.mergeDigest(hb.Digest, time.Now())
		c.peers.Touch(from.nodeID, time.Now())
		return nil
	case TagSyncRequest:
		var req SyncRequest
		if err := decodeBody(body, &req); err != nil {
			return err
		}
		go c.streamSnapshot(from, req)
		return nil
	case TagSnapshot:
		var snap Snapshot
		if err := decodeBody(body, &snap); err != nil {
			return err
		}
		for _, v := range snap.Values {
			if err := c.engine.ApplyRemote(v); err != nil {
				c.logger.Warn().Err(err).Msg("apply_remote failed during sync")
			}
		}
		return nil
	default:
		return nil
	}
}

// streamSnapshot answers a SyncRequest by streaming every VersionedValue
// this node knows, ordered by created_at_nanos, chunked to
// SnapshotChunkSize entries per frame.
func (c *Cluster) streamSnapshot(to *peerConn, _ SyncRequest) {
	var all []model.VersionedValue
	for _, ns := range c.engine.ListNamespaces() {
		for _, k := range c.engine.AllKeys(ns) {
			hist, err := c.engine.History(ns, k)
			if err != nil {
				continue
			}
			all = append(all, hist...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAtNanos < all[j].CreatedAtNanos })

	chunk := c.cfg.SnapshotChunkSize
	if chunk <= 0 {
		chunk = SnapshotChunkSize
	}
	for start := 0; start < len(all) || start == 0; start += chunk {
		end := start + chunk
		if end > len(all) {
			end = len(all)
		}
		frame, err := encodeFrame(TagSnapshot, Snapshot{Values: all[start:end], More: end < len(all)})
		if err != nil {
			return
		}
		to.enqueue(frame, c.logger)
		if end >= len(all) {
			break
		}
	}
}

// Join bootstraps membership from one known address: dial it, handshake,
// then request a full sync — after HelloAck, the joiner sends
// SyncRequest(None) to the one peer it just connected to.
func (c *Cluster) Join(ctx context.Context, bootstrapAddr string) error {
	pc, err := c.connectPeer(ctx, bootstrapAddr)
	if err != nil {
		return err
	}

	req, err := encodeFrame(TagSyncRequest, SyncRequest{})
	if err != nil {
		return err
	}
	pc.enqueue(req, c.logger)

	go c.runConn(pc, true)
	return nil
}

// Notify implements storage.Notifier: broadcast v to every connected
// peer. A local put enqueues WriteEvent(v) and a per-peer sender task
// fans it out.
func (c *Cluster) Notify(v model.VersionedValue) {
	frame, err := encodeFrame(TagWriteEvent, WriteEvent{Value: v})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode write event")
		return
	}

	c.mu.Lock()
	targets := make([]*peerConn, 0, len(c.conns))
	for _, pc := range c.conns {
		targets = append(targets, pc)
	}
	c.mu.Unlock()

	for _, pc := range targets {
		pc.enqueue(frame, c.logger)
	}
}

// Run drives the gossip and failure-detector ticks until ctx is
// cancelled: gossip every T_g, suspect at T_dead, evict at T_evict.
func (c *Cluster) Run(ctx context.Context) error {
	gossipTicker := time.NewTicker(c.cfg.GossipInterval)
	defer gossipTicker.Stop()
	sweepTicker := time.NewTicker(c.cfg.DeadAfter)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gossipTicker.C:
			c.gossipRound(ctx)
		case <-sweepTicker.C:
			c.peers.SweepSuspectsAndEvictions(time.Now(), c.cfg.DeadAfter, c.cfg.EvictAfter)
		}
	}
}

// gossipRound picks k random known peers and exchanges a Heartbeat
// digest with each, reconnecting (with backoff) to any that aren't
// currently connected.
func (c *Cluster) gossipRound(ctx context.Context) {
	all := c.peers.All()
	if len(all) == 0 {
		return
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

	k := c.cfg.FanoutK
	if k > len(all) {
		k = len(all)
	}

	digest := c.peers.Digest(time.Now())
	hb, err := encodeFrame(TagHeartbeat, Heartbeat{Digest: digest})
	if err != nil {
		return
	}

	for _, p := range all[:k] {
		if p.NodeID == c.nodeID {
			continue
		}
		c.mu.Lock()
		pc, connected := c.conns[hex.EncodeToString(p.NodeID[:])]
		c.mu.Unlock()

		if connected {
			pc.enqueue(hb, c.logger)
			continue
		}
		c.maybeReconnect(ctx, p.Addr)
	}
}

// maybeReconnect launches a backoff-driven reconnect attempt to addr if
// one isn't already in flight; the exponential backoff caps at
// cfg.ReconnectMaxDelay.
func (c *Cluster) maybeReconnect(ctx context.Context, addr string) {
	c.mu.Lock()
	if c.dialing[addr] {
		c.mu.Unlock()
		return
	}
	c.dialing[addr] = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.dialing, addr)
			c.mu.Unlock()
		}()

		b := backoff.NewExponentialBackOff()
		b.MaxInterval = c.cfg.ReconnectMaxDelay
		b.MaxElapsedTime = 0 // retry indefinitely; the caller's ctx bounds it

		_ = backoff.Retry(func() error {
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			default:
			}
			pc, err := c.connectPeer(ctx, addr)
			if err != nil {
				return err
			}
			go c.runConn(pc, true)
			return nil
		}, backoff.WithContext(b, ctx))
	}()
}

// Close shuts down the listener and every live peer connection.
func (c *Cluster) Close() error {
	if c.listener != nil {
		_ = c.listener.Close()
	}
	c.mu.Lock()
	conns := make([]*peerConn, 0, len(c.conns))
	for _, pc := range c.conns {
		conns = append(conns, pc)
	}
	c.mu.Unlock()
	for _, pc := range conns {
		pc.close()
	}
	return nil
}
