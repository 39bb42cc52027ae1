package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityStake/internal/chain"
	"liquidityStake/internal/config"
	"liquidityStake/internal/custody"
	"liquidityStake/internal/ledger"
	"liquidityStake/internal/model"
	"liquidityStake/internal/replay"
	"liquidityStake/internal/storage"
	"liquidityStake/internal/storage/postgres"
)

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	only, err := replay.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	at, hasAt, err := config.ParseTimestamp(cfg.At)
	if err != nil {
		return fmt.Errorf("parse at: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var snapshots storage.SnapshotStore
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		snapshots = &storage.DBSnapshotStore{Store: store, Name: cfg.SnapshotName}
	} else {
		snapshots = &storage.FileSnapshotStore{Path: cfg.Snapshot}
	}

	snap, ok, err := snapshots.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot found")
	}

	var (
		chainClient *chain.Client
		token       *custody.ERC20Mover
	)
	if cfg.RPCURL != "" {
		chainClient, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		if common.IsHexAddress(cfg.Token) {
			token = custody.NewERC20Mover(custody.ERC20Config{Token: common.HexToAddress(cfg.Token)}, chainClient, logger)
		}
	}

	if !hasAt {
		at = snap.TakenAt
		if chainClient != nil {
			if at, err = chainClient.LatestTimestamp(ctx); err != nil {
				return fmt.Errorf("latest timestamp: %w", err)
			}
		}
	}

	engine := ledger.NewEngine(ledger.Config{Clock: ledger.NewManualClock(at)}, logger)
	if err := engine.Restore(snap); err != nil {
		return err
	}

	logger.Debug("inspect",
		zap.Int64("at", at),
		zap.Int("pools", len(snap.Pools)),
		zap.Uint64("last_seq", snap.LastSeq),
	)

	return printReport(ctx, os.Stdout, engine, snap, only, at, token)
}

func printReport(ctx context.Context, out io.Writer, engine *ledger.Engine, snap model.Snapshot, only []common.Address, at int64, token *custody.ERC20Mover) error {
	var decimals uint8
	if token != nil {
		d, err := token.Decimals(ctx)
		if err != nil {
			return fmt.Errorf("token decimals: %w", err)
		}
		decimals = d
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "snapshot seq=%d line=%d taken_at=%d evaluated_at=%d\n\n", snap.LastSeq, snap.LastLine, snap.TakenAt, at)
	fmt.Fprintln(w, "POOL\tSTAKERS\tSTAKED\tREWARDS\tWEIGHTED\tLIVE_WEIGHT\tDRIFT\tMAKER\tTAKER\tIL_FUND\tEMERGENCY")

	type vaultLine struct {
		pool, vault common.Address
		expected    *big.Int
	}
	var vaults []vaultLine

	for _, p := range snap.Pools {
		if !selected(only, p.ID) {
			continue
		}
		live, recorded, err := engine.WeightDrift(p.ID, at)
		if err != nil {
			return fmt.Errorf("weight drift %s: %w", p.ID.Hex(), err)
		}
		drift := new(big.Int).Sub(new(big.Int).SetUint64(live), new(big.Int).SetUint64(recorded))
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t%d\t%d\t%d\t%t\n",
			p.ID.Hex(),
			len(engine.Stakers(p.ID)),
			p.TotalStaked,
			p.TotalRewards,
			recorded,
			live,
			drift,
			p.MakerFeeRate,
			p.TakerFeeRate,
			p.ImpermanentLossProtectionFund,
			p.IsEmergency,
		)
		expected := new(big.Int).Add(new(big.Int).SetUint64(p.TotalStaked), new(big.Int).SetUint64(p.TotalRewards))
		vaults = append(vaults, vaultLine{pool: p.ID, vault: p.Vault, expected: expected})
	}

	fmt.Fprintf(w, "\ntreasury collected_fees=%d\n", snap.Treasury.CollectedFees)
	if snap.Governance != nil {
		fmt.Fprintf(w, "governance members=%d threshold=%d\n", len(snap.Governance.Members), snap.Governance.Threshold)
	}

	if token != nil && len(vaults) > 0 {
		fmt.Fprintln(w, "\nVAULT\tON_CHAIN\tLEDGER\tDIFF")
		for _, v := range vaults {
			bal, err := token.BalanceOf(ctx, v.vault)
			if err != nil {
				return fmt.Errorf("balance of %s: %w", v.vault.Hex(), err)
			}
			diff := new(big.Int).Sub(bal, v.expected)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				v.vault.Hex(),
				formatTokenAmount(bal, decimals),
				formatTokenAmount(v.expected, decimals),
				formatTokenAmount(diff, decimals),
			)
		}
	}
	return w.Flush()
}

func selected(only []common.Address, id common.Address) bool {
	if len(only) == 0 {
		return true
	}
	for _, addr := range only {
		if addr == id {
			return true
		}
	}
	return false
}
