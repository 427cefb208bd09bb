package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaultsWithNoFlags(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().HotCapacity, cfg.HotCapacity)
	require.Nil(t, cfg.Cluster)
}

func TestParseOverridesTierSizes(t *testing.T) {
	cfg, err := Parse([]string{"--data-dir", "/tmp/x", "--hot-capacity", "50", "--warm-capacity", "500"})
	require.NoError(t, err)
	require.Equal(t, "/tmp/x", cfg.DataDir)
	require.Equal(t, 50, cfg.HotCapacity)
	require.Equal(t, 500, cfg.WarmCapacity)
}

func TestParseEnablesClusterWhenListenAddrGiven(t *testing.T) {
	cfg, err := Parse([]string{"--cluster-listen", ":7946", "--cluster-bootstrap", "host1:7946,host2:7946"})
	require.NoError(t, err)
	require.NotNil(t, cfg.Cluster)
	require.Equal(t, ":7946", cfg.Cluster.ListenAddr)
	require.Equal(t, []string{"host1:7946", "host2:7946"}, cfg.Cluster.Bootstrap)
}

func TestParseRejectsNonPositiveCapacity(t *testing.T) {
	_, err := Parse([]string{"--hot-capacity", "0"})
	require.Error(t, err)
}

func TestParseRejectsEmptyDataDir(t *testing.T) {
	_, err := Parse([]string{"--data-dir", ""})
	require.Error(t, err)
}
