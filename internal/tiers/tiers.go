// Package tiers implements C6: the four-level memory hierarchy (Hot, Warm,
// Cold, Deep) that sits as a cache in front of C2/C3. Every tier entry is
// keyed by (namespace,key) and points at the current head VersionedValue,
// never at history. A lookup miss falls through to the next tier; any hit
// promotes the entry to Hot and records an access.
package tiers

import (
	"context"
	"time"

	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/versionstore"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds the tier sizes and background cadences.
type Config struct {
	HotCapacity  int           // H, default 1000
	WarmCapacity int           // W, default 10000
	ColdEpochs   int           // E, default 4
	Consolidate  time.Duration // T_c, default 30s
	Distill      time.Duration // T_d, default 5min
}

// DefaultConfig returns the tiers' stated defaults.
func DefaultConfig() Config {
	return Config{
		HotCapacity:  1000,
		WarmCapacity: 10000,
		ColdEpochs:   4,
		Consolidate:  30 * time.Second,
		Distill:      5 * time.Minute,
	}
}

// entry is the unit every tier stores: a cached head value plus the
// bookkeeping the fitness function and LWW-adjacent promotion logic need.
type entry struct {
	key         model.Key
	head        model.VersionedValue
	accessCount int64
	lastAccess  int64 // unix nanos
}

// HistoryProvider supplies chain_depth(v) for the fitness function
// without tiers having to duplicate CausalGraph's parent-walk. The
// StorageEngine satisfies this directly.
type HistoryProvider interface {
	History(namespace, key string) ([]model.VersionedValue, error)
}

// Tiers is C6. It is wired into a StorageEngine as a storage.TierPublisher
// and, for reads that want cache-accelerated head lookups, queried
// directly via Get.
type Tiers struct {
	cfg Config

	hot  *hotTier
	warm *warmTier
	cold *coldTier
	deep *deepTier

	versions *versionstore.Store
	history  HistoryProvider
	logger   zerolog.Logger
}

// New builds the four tiers. dbPath is the Deep tier's bbolt file.
func New(cfg Config, dbPath string, versions *versionstore.Store, history HistoryProvider, logger zerolog.Logger) (*Tiers, error) {
	deep, err := newDeepTier(dbPath)
	if err != nil {
		return nil, err
	}

	t := &Tiers{
		cfg:      cfg,
		warm:     newWarmTier(cfg.WarmCapacity),
		cold:     newColdTier(cfg.ColdEpochs),
		deep:     deep,
		versions: versions,
		history:  history,
		logger:   logger,
	}
	t.hot = newHotTier(cfg.HotCapacity, t.demoteFromHot)
	return t, nil
}

// Publish implements storage.TierPublisher: every put/apply_remote
// inserts (or refreshes) the head entry directly into Hot, the freshest
// tier. New writes are always hot.
func (t *Tiers) Publish(key model.Key, head model.VersionedValue) {
	e := &entry{key: key, head: head, accessCount: 0, lastAccess: nowNanos()}
	t.warm.remove(key.String())
	t.cold.remove(key.String())
	t.deep.remove(key)
	t.hot.add(key.String(), e)
}

// Get looks up the cached head for key, falling through Hot -> Warm ->
// Cold -> Deep, promoting on any hit. ok is false only when the key is
// unknown to every tier. Tiers is a cache, not the source of truth:
// StorageEngine's own reads go to CausalGraph/VersionStore and do not
// call Get.
func (t *Tiers) Get(key model.Key) (model.VersionedValue, bool) {
	k := key.String()

	if e, ok := t.hot.get(k); ok {
		t.touch(e)
		return e.head, true
	}
	if e, ok := t.warm.get(k); ok {
		t.touch(e)
		t.warm.remove(k)
		t.hot.add(k, e)
		return e.head, true
	}
	if e, ok := t.cold.get(k); ok {
		t.touch(e)
		t.cold.remove(k)
		t.hot.add(k, e)
		return e.head, true
	}
	if v, ok := t.deep.get(key, t.versions); ok {
		e := &entry{key: key, head: v, accessCount: 0, lastAccess: nowNanos()}
		t.touch(e)
		t.deep.remove(key)
		t.hot.add(k, e)
		return v, true
	}
	return model.VersionedValue{}, false
}

func (t *Tiers) touch(e *entry) {
	e.accessCount++
	e.lastAccess = nowNanos()
}

// demoteFromHot is Hot's eviction callback: the oldest-touched entry
// moves to Warm rather than being dropped.
func (t *Tiers) demoteFromHot(_ string, e *entry) {
	t.warm.add(e)
}

// Run drives the consolidation and distillation ticks on one cooperative
// goroutine group until ctx is cancelled. Both run on their own ticker
// but share the same errgroup for cancellation and error propagation.
func (t *Tiers) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(t.cfg.Consolidate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				t.consolidate()
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(t.cfg.Distill)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				t.distill()
			}
		}
	})

	return g.Wait()
}

// consolidate enforces Warm's capacity (overflow moves the globally oldest
// entry to Cold) and rotates the Cold ring on its own tick, handing the
// bumped-out epoch to the same fitness pass distill uses.
func (t *Tiers) consolidate() {
	for t.warm.len() > t.cfg.WarmCapacity {
		victim, ok := t.warm.evictOldest()
		if !ok {
			break
		}
		t.cold.add(victim)
	}
	bumped := t.cold.rotate()
	t.evaluateFitness(bumped)
}

// distill runs an out-of-cadence fitness pass over every live Cold epoch,
// in addition to the rotation-triggered pass consolidate already
// performs. This is what catches entries that have gone cold without
// ever being bumped by a rotation.
func (t *Tiers) distill() {
	for _, e := range t.cold.snapshot() {
		f := fitness(e, t.chainDepth(e.key))
		if f < fitnessTheta {
			t.cold.remove(e.key.String())
			if err := t.deep.put(e.head); err != nil {
				t.logger.Warn().Err(err).Str("key", e.key.String()).Msg("deep archival failed")
			}
		}
	}
}

func (t *Tiers) evaluateFitness(bumped []*entry) {
	for _, e := range bumped {
		f := fitness(e, t.chainDepth(e.key))
		if f < fitnessTheta {
			if err := t.deep.put(e.head); err != nil {
				t.logger.Warn().Err(err).Str("key", e.key.String()).Msg("deep archival failed")
			}
		} else {
			t.cold.add(e)
		}
	}
}

func (t *Tiers) chainDepth(key model.Key) int {
	if t.history == nil {
		return 0
	}
	h, err := t.history.History(key.Namespace, key.Key)
	if err != nil {
		return 0
	}
	return len(h)
}

// Close releases the Deep tier's bbolt handle.
func (t *Tiers) Close() error {
	return t.deep.close()
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
