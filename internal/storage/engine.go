// Package storage implements C5: the StorageEngine that composes
// ValueStore, VersionStore, CausalGraph and the WAL behind the single
// put/get/history/get_at/list_keys/list_namespaces/apply_remote contract.
// Every other component (memory tiers, the query engine, the replicator)
// is a cache or a consumer over this engine, never a second path to
// durable state.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/korudelta/core/internal/causalgraph"
	"github.com/korudelta/core/internal/kerr"
	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/shard"
	"github.com/korudelta/core/internal/valuestore"
	"github.com/korudelta/core/internal/versionstore"
	"github.com/korudelta/core/internal/wal"
	"github.com/rs/zerolog"
)

// TierPublisher is the Hot-tier side of step 6 of the put sequence (spec
// §4.5: "Publish to MemoryTiers (Hot)"). The engine depends only on this
// narrow interface so it can be built and tested before the tiers package
// exists, and so apply_remote writes promote into Hot exactly like local
// ones.
type TierPublisher interface {
	Publish(key model.Key, head model.VersionedValue)
}

// Notifier is the Replicator side of a local put: fire-and-forget,
// notify with v. apply_remote skips this entirely, since a write
// arriving via replication must not be re-broadcast by the same path
// that received it.
type Notifier interface {
	Notify(v model.VersionedValue)
}

type noopPublisher struct{}

func (noopPublisher) Publish(model.Key, model.VersionedValue) {}

type noopNotifier struct{}

func (noopNotifier) Notify(model.VersionedValue) {}

// Engine is C5. It owns the data directory's exclusive lock, the WAL, and
// the three in-memory stores (C1–C3); Hot-tier publication and remote
// notification are delegated to whatever was wired in at construction.
type Engine struct {
	dataDir string
	nodeID  model.OriginNode

	lock *wal.Lock
	log  *wal.WAL

	values   *valuestore.Store
	versions *versionstore.Store
	graph    *causalgraph.Graph

	keyLocks shard.Locks
	clock    clock

	tiers    TierPublisher
	notifier Notifier

	logger zerolog.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithTierPublisher wires the Hot tier's promotion hook.
func WithTierPublisher(p TierPublisher) Option {
	return func(e *Engine) { e.tiers = p }
}

// SetTierPublisher wires the Hot tier's promotion hook after construction.
// Tiers commonly need a reference to this same Engine (as a
// HistoryProvider) to build, so the usual construction order is Open
// first, then Tiers, then SetTierPublisher. The Option form above only
// covers tier implementations that don't need the engine back.
func (e *Engine) SetTierPublisher(p TierPublisher) {
	e.tiers = p
}

// WithNotifier wires the replicator's fire-and-forget notification hook.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger overrides the default (silent) logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

const (
	walFileName        = "wal.log"
	checkpointFileName = "checkpoint.bin"
)

// Open acquires the data directory's exclusive lock, opens the WAL, and
// replays recorded history into fresh C1–C3 stores: load the latest
// checkpoint, then replay the WAL tail on top of it.
func Open(dataDir string, nodeID model.OriginNode, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", kerr.ErrIO, err)
	}

	lock, err := wal.AcquireLock(dataDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dataDir:  dataDir,
		nodeID:   nodeID,
		lock:     lock,
		values:   valuestore.New(),
		versions: versionstore.New(),
		graph:    causalgraph.New(),
		tiers:    noopPublisher{},
		notifier: noopNotifier{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.recover(); err != nil {
		lock.Release()
		return nil, err
	}

	logFile, err := wal.Open(filepath.Join(dataDir, walFileName))
	if err != nil {
		lock.Release()
		return nil, err
	}
	e.log = logFile

	return e, nil
}

// recover loads the latest checkpoint (if any) then replays the WAL tail,
// ingesting every record into the live stores without touching the log or
// notifying tiers/replicator. Recovery rebuilds state, it doesn't
// re-derive it: every recovered entry starts outside the tier cache, not
// promoted to Hot, since nothing actually read it yet.
func (e *Engine) recover() error {
	cpPath := filepath.Join(e.dataDir, checkpointFileName)
	cp, ok, err := wal.LoadCheckpoint(cpPath)
	if err != nil {
		return err
	}
	if ok {
		keys := make([]string, 0, len(cp.Heads))
		for k := range cp.Heads {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := e.ingest(cp.Heads[k]); err != nil {
				return fmt.Errorf("replay checkpoint entry %s: %w", k, err)
			}
		}
	}

	logFile, err := wal.Open(filepath.Join(e.dataDir, walFileName))
	if err != nil {
		return err
	}
	replayErr := logFile.Replay(func(entry wal.Entry) error {
		return e.ingest(entry.Value)
	})
	closeErr := logFile.Close()
	if replayErr != nil {
		if errors.Is(replayErr, kerr.ErrWALCorruption) {
			e.logger.Warn().Err(replayErr).Msg("wal tail corruption detected, truncated and continuing")
		} else {
			return fmt.Errorf("replay wal: %w", replayErr)
		}
	}
	if closeErr != nil {
		return closeErr
	}
	return nil
}

// ingest applies an already-durable VersionedValue to the three in-memory
// stores, used by both recovery and apply_remote. A duplicate write_id
// (already known, e.g. re-applied from an overlapping checkpoint/WAL
// window, or a write this node has already seen from another peer) is
// treated as success, never as corruption.
func (e *Engine) ingest(v model.VersionedValue) error {
	e.values.InsertEncoded(v.DistinctionID, v.Value)
	if err := e.versions.Put(v); err != nil {
		if errors.Is(err, kerr.ErrDuplicateWrite) {
			return nil
		}
		return err
	}
	if _, err := e.graph.Append(v); err != nil && !errors.Is(err, kerr.ErrDuplicateWrite) {
		return err
	}
	e.clock.observe(v.CreatedAtNanos)
	return nil
}
