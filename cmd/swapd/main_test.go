package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offerswap/config"
	"offerswap/core"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	env := map[string]string{genesisPathEnv: "/env/genesis.json"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	require.Equal(t, "/flag.json", resolveGenesisPath(" /flag.json ", "/cfg.json", lookup))
	require.Equal(t, "/env/genesis.json", resolveGenesisPath("", "/cfg.json", lookup))

	env[genesisPathEnv] = "  "
	require.Equal(t, "/cfg.json", resolveGenesisPath("", "/cfg.json", lookup))
}

func TestNodeConfigFromFile(t *testing.T) {
	cfg := config.Default()
	cfg.Node.BlockIntervalMs = 250
	cfg.Node.MaxBlockTxs = 0
	cfg.Node.MempoolLimit = 5
	cfg.Escrow.StaleAfterBlocks = 42

	out := nodeConfig(cfg)
	require.Equal(t, 250*time.Millisecond, out.BlockInterval)
	require.Equal(t, core.DefaultConfig().MaxBlockTxs, out.MaxBlockTxs)
	require.Equal(t, 5, out.MempoolLimit)
	require.Equal(t, uint64(42), out.StaleAfterBlocks)
}

func TestServerAndTelemetryConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RPC.SubmitTimeout = 7
	cfg.Telemetry.Headers = "a=b"

	srv := serverConfig(cfg)
	require.Equal(t, 7*time.Second, srv.SubmitTimeout)
	require.Equal(t, cfg.RPC.RateLimitBurst, srv.RateLimitBurst)

	tel, err := telemetryConfig(cfg, "abcd")
	require.NoError(t, err)
	require.Equal(t, "swapd", tel.ServiceName)
	require.Equal(t, "abcd", tel.GenesisHash)
	require.Equal(t, map[string]string{"a": "b"}, tel.Headers)

	cfg.Telemetry.Headers = "a=b,broken"
	_, err = telemetryConfig(cfg, "abcd")
	require.Error(t, err)
}

func TestOpenStorageInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.InMemory = true
	db, err := openStorage(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
