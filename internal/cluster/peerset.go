package cluster

import (
	"encoding/hex"
	"sync"
	"time"
)

// PeerState is the per-peer connection state machine:
// Connecting -> Handshaking -> Syncing -> Steady -> Suspect -> Closed.
type PeerState int

const (
	Connecting PeerState = iota
	Handshaking
	Syncing
	Steady
	Suspect
	Closed
)

func (s PeerState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Syncing:
		return "syncing"
	case Steady:
		return "steady"
	case Suspect:
		return "suspect"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is one known cluster member: node_id mapped to its address,
// epoch, and last heartbeat.
type Peer struct {
	NodeID        [16]byte
	Addr          string
	Epoch         uint64
	LastHeartbeat time.Time
	State         PeerState
}

func (p Peer) idHex() string {
	return hex.EncodeToString(p.NodeID[:])
}

// PeerSet is the gossiped membership table, guarded by a single mutex —
// membership changes are rare and low-volume next to the data path, so a
// sharded map (like C1–C3) would be needless complexity here.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[string]*Peer // hex(node_id) -> Peer
}

// NewPeerSet creates an empty membership table.
func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[string]*Peer)}
}

// Upsert merges an observed peer record: the greater epoch wins, and
// within the same epoch the fresher heartbeat wins. Returns the peer
// after merging.
func (ps *PeerSet) Upsert(nodeID [16]byte, addr string, epoch uint64, lastHeartbeat time.Time) *Peer {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	key := hex.EncodeToString(nodeID[:])
	existing, ok := ps.peers[key]
	if !ok {
		p := &Peer{NodeID: nodeID, Addr: addr, Epoch: epoch, LastHeartbeat: lastHeartbeat, State: Connecting}
		ps.peers[key] = p
		return p
	}

	if epoch > existing.Epoch || (epoch == existing.Epoch && lastHeartbeat.After(existing.LastHeartbeat)) {
		existing.Addr = addr
		existing.Epoch = epoch
		existing.LastHeartbeat = lastHeartbeat
		if existing.State == Suspect {
			existing.State = Steady
		}
	}
	return existing
}

// SetState transitions a known peer's connection state machine.
func (ps *PeerSet) SetState(nodeID [16]byte, state PeerState) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok := ps.peers[hex.EncodeToString(nodeID[:])]; ok {
		p.State = state
	}
}

// Touch records a fresh heartbeat for a known peer without touching
// epoch/addr.
func (ps *PeerSet) Touch(nodeID [16]byte, at time.Time) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok := ps.peers[hex.EncodeToString(nodeID[:])]; ok {
		p.LastHeartbeat = at
	}
}

// All returns a snapshot of every known peer.
func (ps *PeerSet) All() []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		out = append(out, *p)
	}
	return out
}

// Get returns a copy of the peer record for nodeID.
func (ps *PeerSet) Get(nodeID [16]byte) (Peer, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.peers[hex.EncodeToString(nodeID[:])]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Evict removes a peer entirely.
func (ps *PeerSet) Evict(nodeID [16]byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.peers, hex.EncodeToString(nodeID[:]))
}

// Digest renders the membership table into the compact rows gossiped over
// the wire, with last_heartbeat expressed as an age relative to "now" so
// the receiver doesn't need synchronized clocks to interpret it.
func (ps *PeerSet) Digest(now time.Time) []MembershipRow {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]MembershipRow, 0, len(ps.peers))
	for _, p := range ps.peers {
		out = append(out, MembershipRow{
			NodeID:           append([]byte(nil), p.NodeID[:]...),
			Addr:             p.Addr,
			Epoch:            p.Epoch,
			LastHeartbeatAge: int64(now.Sub(p.LastHeartbeat)),
		})
	}
	return out
}

// MergeDigest folds a remote digest into this table via Upsert, treating
// each row's age as relative to receivedAt.
func (ps *PeerSet) MergeDigest(rows []MembershipRow, receivedAt time.Time) {
	for _, row := range rows {
		var id [16]byte
		copy(id[:], row.NodeID)
		ps.Upsert(id, row.Addr, row.Epoch, receivedAt.Add(-time.Duration(row.LastHeartbeatAge)))
	}
}

// SweepSuspectsAndEvictions marks peers unheard-from past deadDur as
// Suspect, and evicts ones unheard-from past evictDur (default 10s dead,
// 30s evict).
func (ps *PeerSet) SweepSuspectsAndEvictions(now time.Time, deadDur, evictDur time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for key, p := range ps.peers {
		age := now.Sub(p.LastHeartbeat)
		switch {
		case age >= evictDur:
			delete(ps.peers, key)
		case age >= deadDur:
			p.State = Suspect
		}
	}
}
