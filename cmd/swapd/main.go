package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"offerswap/config"
	"offerswap/core"
	"offerswap/core/genesis"
	"offerswap/indexer"
	"offerswap/observability/logging"
	telemetry "offerswap/observability/otel"
	"offerswap/rpc"
	"offerswap/storage"
)

const genesisPathEnv = "SWAP_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis spec (overrides SWAP_GENESIS and config GenesisFile)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *genesisFlag); err != nil {
		fmt.Fprintf(os.Stderr, "swapd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile, genesisFlag string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Options{
		Service:    "swapd",
		Env:        cfg.Logging.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	node, err := core.NewNode(db, nodeConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	if node.Chain().Empty() {
		path := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return err
		}
		if err := node.InitGenesis(spec); err != nil {
			return fmt.Errorf("init genesis: %w", err)
		}
		logger.Info("genesis committed", slog.String("path", path))
	}

	genesisHash, err := node.Chain().GenesisHash()
	if err != nil {
		return fmt.Errorf("load genesis block: %w", err)
	}
	telCfg, err := telemetryConfig(cfg, hex.EncodeToString(genesisHash))
	if err != nil {
		return err
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	server, err := rpc.NewServer(node, serverConfig(cfg), logger)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	if cfg.Indexer.Enabled {
		sqlDB, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		ix, err := indexer.New(sqlDB, logger)
		if err != nil {
			return err
		}
		defer ix.Close()
		server.UseIndex(ix)
		logger.Info("offer indexer enabled",
			slog.String("driver", cfg.Indexer.Driver),
			logging.MaskField("dsn", cfg.Indexer.DSN))
		group.Go(func() error { return ix.Run(ctx, node.Events(), node.Chain()) })
	}
	group.Go(func() error { return server.Start(ctx, cfg.RPC.ListenAddress) })
	group.Go(func() error { return node.Run(ctx) })

	logger.Info("swapd started",
		slog.Uint64("height", node.Height()),
		slog.String("rpc", cfg.RPC.ListenAddress),
		slog.Duration("block_interval", cfg.BlockInterval()))

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("swapd stopped", slog.Uint64("height", node.Height()))
	return nil
}

func openStorage(cfg *config.Config) (storage.Database, error) {
	if cfg.Storage.InMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	return storage.NewLevelDBWithOptions(cfg.DataDir, storage.LevelDBOptions{
		CacheMB:   cfg.Storage.CacheMB,
		OpenFiles: cfg.Storage.OpenFiles,
	})
}

func nodeConfig(cfg *config.Config) core.Config {
	out := core.DefaultConfig()
	if d := cfg.BlockInterval(); d > 0 {
		out.BlockInterval = d
	}
	if cfg.Node.MaxBlockTxs > 0 {
		out.MaxBlockTxs = cfg.Node.MaxBlockTxs
	}
	if cfg.Node.MempoolLimit > 0 {
		out.MempoolLimit = cfg.Node.MempoolLimit
	}
	if cfg.Node.EventBuffer > 0 {
		out.EventBuffer = cfg.Node.EventBuffer
	}
	out.StaleAfterBlocks = cfg.Escrow.StaleAfterBlocks
	return out
}

func serverConfig(cfg *config.Config) rpc.ServerConfig {
	return rpc.ServerConfig{
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
		SubmitTimeout:     time.Duration(cfg.RPC.SubmitTimeout) * time.Second,
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateLimitBurst:    cfg.RPC.RateLimitBurst,
		TrustProxyHeaders: cfg.RPC.TrustProxyHeaders,
		DevFaucet:         cfg.RPC.DevFaucet,
		JWTSecretEnv:      cfg.RPC.JWTSecretEnv,
		JWTIssuer:         cfg.RPC.JWTIssuer,
	}
}

func telemetryConfig(cfg *config.Config, genesisHash string) (telemetry.Config, error) {
	headers, err := telemetry.ParseHeaders(cfg.Telemetry.Headers)
	if err != nil {
		return telemetry.Config{}, err
	}
	return telemetry.Config{
		ServiceName: "swapd",
		Environment: cfg.Logging.Env,
		GenesisHash: genesisHash,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, nil
}

// resolveGenesisPath prefers the flag, then SWAP_GENESIS, then the config.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(configValue)
}
