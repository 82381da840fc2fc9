package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`

	Storage   Storage   `toml:"storage"`
	Node      Node      `toml:"node"`
	Escrow    Escrow    `toml:"escrow"`
	RPC       RPC       `toml:"rpc"`
	Indexer   Indexer   `toml:"indexer"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Default returns the configuration written for a new development node.
func Default() *Config {
	return &Config{
		DataDir:     "./swap-data",
		GenesisFile: "./genesis.json",
		Storage:     Storage{CacheMB: 64, OpenFiles: 256},
		Node: Node{
			BlockIntervalMs: 1000,
			MaxBlockTxs:     1000,
			MempoolLimit:    10_000,
			EventBuffer:     256,
		},
		Escrow: Escrow{StaleAfterBlocks: 86_400},
		RPC: RPC{
			ListenAddress:     "127.0.0.1:8080",
			ReadHeaderTimeout: 5,
			SubmitTimeout:     30,
			RateLimitPerSec:   20,
			RateLimitBurst:    40,
			JWTSecretEnv:      "SWAP_RPC_JWT_SECRET",
			JWTIssuer:         "offerswap",
		},
		Indexer: Indexer{Driver: "sqlite", DSN: "file:offers.db"},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// resolvePaths anchors relative file paths at the directory of the config.
func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.DataDir, &c.GenesisFile, &c.Logging.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// BlockInterval returns the configured block interval.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.Node.BlockIntervalMs) * time.Millisecond
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
