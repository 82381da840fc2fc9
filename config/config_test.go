package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	if cfg.BlockInterval() != time.Second {
		t.Fatalf("unexpected block interval %s", cfg.BlockInterval())
	}
	if cfg.DataDir != filepath.Join(dir, "nested", "swap-data") {
		t.Fatalf("data dir not anchored: %s", cfg.DataDir)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPC.ListenAddress != cfg.RPC.ListenAddress {
		t.Fatalf("reload changed rpc address: %s", reloaded.RPC.ListenAddress)
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `DataDir = "/var/lib/swap"
GenesisFile = "/etc/swap/genesis.yaml"

[node]
BlockIntervalMs = 250
MaxBlockTxs = 50

[escrow]
StaleAfterBlocks = 120

[rpc]
ListenAddress = "0.0.0.0:9000"
RateLimitPerSec = 5
RateLimitBurst = 10
DevFaucet = true

[indexer]
Enabled = true
Driver = "postgres"
DSN = "postgres://swap@localhost/offers"

[logging]
Level = "debug"

[telemetry]
Traces = true
SampleRatio = 0.25
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BlockInterval() != 250*time.Millisecond {
		t.Fatalf("unexpected interval %s", cfg.BlockInterval())
	}
	if cfg.Node.MaxBlockTxs != 50 || cfg.Node.MempoolLimit != 10_000 {
		t.Fatalf("unexpected node section %+v", cfg.Node)
	}
	if cfg.Escrow.StaleAfterBlocks != 120 {
		t.Fatalf("unexpected stale threshold %d", cfg.Escrow.StaleAfterBlocks)
	}
	if !cfg.RPC.DevFaucet || cfg.RPC.JWTSecretEnv != "SWAP_RPC_JWT_SECRET" {
		t.Fatalf("unexpected rpc section %+v", cfg.RPC)
	}
	if cfg.Indexer.Driver != "postgres" {
		t.Fatalf("unexpected driver %q", cfg.Indexer.Driver)
	}
	if cfg.Telemetry.SampleRatio != 0.25 {
		t.Fatalf("unexpected sample ratio %v", cfg.Telemetry.SampleRatio)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "DataDir = \"/tmp/x\"\nValidatorKey = \"abc\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"interval":      func(c *Config) { c.Node.BlockIntervalMs = 1 },
		"listen":        func(c *Config) { c.RPC.ListenAddress = "nope" },
		"burst":         func(c *Config) { c.RPC.RateLimitBurst = 0 },
		"faucet secret": func(c *Config) { c.RPC.DevFaucet = true; c.RPC.JWTSecretEnv = "" },
		"driver":        func(c *Config) { c.Indexer.Enabled = true; c.Indexer.Driver = "mysql" },
		"ratio":         func(c *Config) { c.Telemetry.SampleRatio = 2 },
		"data dir":      func(c *Config) { c.DataDir = "" },
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
