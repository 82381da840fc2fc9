package config

import (
	"fmt"
	"net"
	"strings"
)

// MinBlockIntervalMs bounds how fast a node may produce blocks.
var MinBlockIntervalMs = int64(10)

// Validate checks cross-field constraints after defaults are applied.
func Validate(c *Config) error {
	if !c.Storage.InMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir required unless storage.InMemory is set")
	}
	if c.Node.BlockIntervalMs < MinBlockIntervalMs {
		return fmt.Errorf("node: BlockIntervalMs must be at least %d", MinBlockIntervalMs)
	}
	if c.Node.MaxBlockTxs < 0 || c.Node.MempoolLimit < 0 {
		return fmt.Errorf("node: limits must not be negative")
	}
	if _, _, err := net.SplitHostPort(c.RPC.ListenAddress); err != nil {
		return fmt.Errorf("rpc: invalid ListenAddress %q: %w", c.RPC.ListenAddress, err)
	}
	if c.RPC.RateLimitPerSec < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RateLimitPerSec > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst required when RateLimitPerSec is set")
	}
	if c.RPC.DevFaucet && strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		return fmt.Errorf("rpc: DevFaucet requires JWTSecretEnv")
	}
	if c.Indexer.Enabled {
		switch c.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required")
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return nil
}
