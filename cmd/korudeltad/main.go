// cmd/korudeltad is the single entrypoint for a KoruDelta node: storage
// engine, memory tiers, query engine and (optionally) cluster gossip +
// replication, wired together and run until SIGINT/SIGTERM.
//
// Configuration is entirely via flags so one binary can serve any role.
//
// Example — single node:
//
//	./korudeltad --data-dir /var/korudelta/node1
//
// Example — 3-node cluster:
//
//	./korudeltad --data-dir /tmp/n1 --cluster-listen :7946
//	./korudeltad --data-dir /tmp/n2 --cluster-listen :7947 --cluster-bootstrap localhost:7946
//	./korudeltad --data-dir /tmp/n3 --cluster-listen :7948 --cluster-bootstrap localhost:7946
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/korudelta/core/internal/cluster"
	"github.com/korudelta/core/internal/config"
	"github.com/korudelta/core/internal/model"
	"github.com/korudelta/core/internal/storage"
	"github.com/korudelta/core/internal/tiers"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	nodeUUID, err := resolveNodeID(cfg.NodeID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid node-id")
	}
	nodeID := [16]byte(nodeUUID)
	logger = logger.With().Str("node_id", nodeUUID.String()).Logger()

	var clu *cluster.Cluster
	engineOpts := []storage.Option{
		storage.WithLogger(logger.With().Str("component", "storage").Logger()),
	}
	if cfg.Cluster != nil {
		clu = cluster.New(nodeID, cfg.Cluster.ListenAddr, cluster.DefaultConfig(), nil,
			logger.With().Str("component", "cluster").Logger())
		engineOpts = append(engineOpts, storage.WithNotifier(clu))
	}

	engine, err := storage.Open(cfg.DataDir, model.OriginNode(nodeID), engineOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage engine")
	}
	defer engine.Close()
	if clu != nil {
		clu.SetEngine(engine)
	}

	th, err := tiers.New(tiers.Config{
		HotCapacity:  cfg.HotCapacity,
		WarmCapacity: cfg.WarmCapacity,
		ColdEpochs:   cfg.ColdEpochs,
		Consolidate:  cfg.ConsolidationInterval,
		Distill:      cfg.DistillationInterval,
	}, cfg.DataDir+"/deep.db", engine.VersionStore(), engine, logger.With().Str("component", "tiers").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("open tiers")
	}
	defer th.Close()
	engine.SetTierPublisher(th)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if clu != nil {
		if err := clu.Listen(cfg.Cluster.ListenAddr); err != nil {
			logger.Fatal().Err(err).Msg("bind cluster listener")
		}
		go func() {
			if err := clu.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("cluster accept loop exited")
			}
		}()
		go func() {
			if err := clu.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("cluster gossip loop exited")
			}
		}()
		for _, addr := range cfg.Cluster.Bootstrap {
			if err := clu.Join(ctx, addr); err != nil {
				logger.Warn().Err(err).Str("bootstrap", addr).Msg("failed to join bootstrap peer")
			}
		}
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := engine.Checkpoint(); err != nil {
				logger.Error().Err(err).Msg("periodic checkpoint failed")
			}
		}
	}()

	go func() {
		if err := th.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("tier maintenance loop exited")
		}
	}()

	logger.Info().Str("data_dir", cfg.DataDir).Msg("korudeltad started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancel()

	if clu != nil {
		_ = clu.Close()
	}
	if err := engine.Checkpoint(); err != nil {
		logger.Error().Err(err).Msg("final checkpoint failed")
	}
}

func resolveNodeID(raw string, logger zerolog.Logger) (uuid.UUID, error) {
	if raw == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return uuid.UUID{}, err
		}
		logger.Warn().Str("node_id", id.String()).Msg("no --node-id given; generated a fresh identity for this run")
		return id, nil
	}
	return uuid.Parse(raw)
}
