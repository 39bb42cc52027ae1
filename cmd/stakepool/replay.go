package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityStake/internal/chain"
	"liquidityStake/internal/config"
	"liquidityStake/internal/custody"
	"liquidityStake/internal/metrics"
	"liquidityStake/internal/replay"
	"liquidityStake/internal/storage"
	"liquidityStake/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics, err := metrics.NewLedger(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}

	deps := replay.Deps{Metrics: ledgerMetrics}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Journal = store
		deps.Snapshots = &storage.DBSnapshotStore{Store: store, Name: cfg.SnapshotName}
	} else {
		deps.Journal = storage.NewJsonlJournal(cfg.Journal, cfg.Failures)
		deps.Snapshots = &storage.FileSnapshotStore{Path: cfg.Snapshot}
	}

	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		mover, err := newERC20Mover(ctx, cfg, chainClient, logger)
		if err != nil {
			return err
		}
		deps.Mover = mover
	} else {
		deps.Vault = custody.NewMemoryVault()
	}

	runner := replay.NewRunner(replay.RunConfig{
		BatchSize: cfg.BatchSize,
		Retry: replay.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff,
		},
	}, deps, logger)

	logger.Info("replay start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("snapshot", cfg.Snapshot),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("onchain_custody", cfg.RPCURL != ""),
	)

	_, err = runner.Run(ctx, cfg.Input)
	return err
}

func newERC20Mover(ctx context.Context, cfg config.ReplayConfig, chainClient *chain.Client, logger *zap.Logger) (*custody.ERC20Mover, error) {
	if !common.IsHexAddress(cfg.Token) {
		return nil, fmt.Errorf("token address is required with --rpc")
	}
	if len(cfg.CustodyKeys) == 0 {
		return nil, fmt.Errorf("at least one custody key is required with --rpc")
	}

	if cfg.ChainID != 0 {
		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		if !chainID.IsUint64() || chainID.Uint64() != cfg.ChainID {
			return nil, fmt.Errorf("chain id mismatch: rpc reports %s, expected %d", chainID, cfg.ChainID)
		}
	}

	mover := custody.NewERC20Mover(custody.ERC20Config{
		Token:        common.HexToAddress(cfg.Token),
		GasLimit:     cfg.GasLimit,
		PollInterval: cfg.PollInterval,
	}, chainClient, logger.Named("custody"))

	for i, hexKey := range cfg.CustodyKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("custody key %d: %w", i, err)
		}
		addr := mover.AddKey(key)
		logger.Info("custody key loaded", zap.String("address", addr.Hex()))
	}
	return mover, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
