// Package config holds the node's configuration surface: storage
// location, memory-tier sizing, background ticker cadences, and optional
// cluster membership. A single binary (cmd/korudeltad) can serve any role
// just by varying these flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ClusterConfig carries this node's gossip/replication identity. It is
// nil (unset) for a single-node deployment.
type ClusterConfig struct {
	ListenAddr string
	Bootstrap  []string
}

// Config is the full node configuration.
type Config struct {
	NodeID                string // uuid string; empty means "generate one at startup"
	DataDir               string
	HotCapacity           int
	WarmCapacity          int
	ColdEpochs            int
	ConsolidationInterval time.Duration
	DistillationInterval  time.Duration

	Cluster *ClusterConfig
}

// DefaultConfig matches the tiers package's own defaults, so a config
// built with no flags behaves identically to tiers.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		DataDir:               "/tmp/korudelta",
		HotCapacity:           1000,
		WarmCapacity:          10000,
		ColdEpochs:            4,
		ConsolidationInterval: 30 * time.Second,
		DistillationInterval:  5 * time.Minute,
	}
}

// Parse builds a Config from command-line flags: one binary, one flag
// set, configured entirely by what's passed on the command line. The
// cluster peer list flag can be repeated, and each value may itself be a
// comma-separated list of addresses.
func Parse(args []string) (Config, error) {
	cfg := DefaultConfig()

	fs := pflag.NewFlagSet("korudeltad", pflag.ContinueOnError)
	fs.StringVar(&cfg.NodeID, "node-id", cfg.NodeID, "this node's uuid identity; generated if empty")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for WAL, checkpoint and deep-tier archive")
	fs.IntVar(&cfg.HotCapacity, "hot-capacity", cfg.HotCapacity, "max entries held in the Hot tier")
	fs.IntVar(&cfg.WarmCapacity, "warm-capacity", cfg.WarmCapacity, "max entries held in the Warm tier")
	fs.IntVar(&cfg.ColdEpochs, "cold-epochs", cfg.ColdEpochs, "number of rotating Cold epochs")
	fs.DurationVar(&cfg.ConsolidationInterval, "consolidation-interval", cfg.ConsolidationInterval, "Warm->Cold consolidation tick")
	fs.DurationVar(&cfg.DistillationInterval, "distillation-interval", cfg.DistillationInterval, "Cold fitness-distillation tick")

	listenAddr := fs.String("cluster-listen", "", "bind address for peer connections; empty disables clustering")
	bootstrap := fs.StringSlice("cluster-bootstrap", nil, "peer addresses to join at startup (repeatable)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *listenAddr != "" {
		cfg.Cluster = &ClusterConfig{
			ListenAddr: *listenAddr,
			Bootstrap:  *bootstrap,
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir must not be empty")
	}
	if c.HotCapacity <= 0 || c.WarmCapacity <= 0 || c.ColdEpochs <= 0 {
		return fmt.Errorf("tier capacities and cold-epochs must be positive")
	}
	if c.Cluster != nil {
		if strings.TrimSpace(c.Cluster.ListenAddr) == "" {
			return fmt.Errorf("cluster-listen must not be blank when clustering is enabled")
		}
	}
	return nil
}
