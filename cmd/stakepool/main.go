package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "stakepool",
		Short:        "Staking and rewards ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL operation stream into the ledger",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("journal", "./data/events.jsonl", "ledger event journal JSONL")
	replayCmd.Flags().String("failures", "./data/failures.jsonl", "rejected operations JSONL")
	replayCmd.Flags().String("snapshot", "./data/snapshot.json", "snapshot file path (ignored when --pg-dsn is set)")
	replayCmd.Flags().String("snapshot-name", "default", "snapshot name in Postgres")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN for snapshots and journal")
	replayCmd.Flags().Int("batch-size", 1000, "operations per journal flush and snapshot")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts for persistence")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")
	replayCmd.Flags().String("rpc", "", "RPC URL; settles custody as ERC20 transfers instead of the in-memory vault")
	replayCmd.Flags().Uint64("chain-id", 0, "expected chain id, 0 skips the check")
	replayCmd.Flags().String("token", "", "staked ERC20 token address")
	replayCmd.Flags().StringSlice("custody-key", nil, "hex private keys of owners and pool authorities (comma-separated)")
	replayCmd.Flags().Uint64("gas-limit", 100_000, "gas limit per transfer")
	replayCmd.Flags().Duration("poll-interval", time.Second, "receipt poll interval")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print pool aggregates and weight drift from a snapshot",
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("snapshot", "./data/snapshot.json", "snapshot file path (ignored when --pg-dsn is set)")
	inspectCmd.Flags().String("snapshot-name", "default", "snapshot name in Postgres")
	inspectCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	inspectCmd.Flags().String("at", "", "evaluate weights at this time (unix seconds or RFC3339); default is the snapshot time, or chain head with --rpc")
	inspectCmd.Flags().StringSlice("pool", nil, "only these pools (comma-separated)")
	inspectCmd.Flags().String("rpc", "", "RPC URL for vault balance reconciliation")
	inspectCmd.Flags().String("token", "", "staked ERC20 token address")
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(inspectCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
