package replay

import (
	"context"
	"errors"

	"liquidityStake/internal/ledger"
	"liquidityStake/internal/model"
)

// OpFund credits an account in the in-memory vault. It stands in for
// deposits made outside the ledger.
const OpFund = "fund"

var errNoVault = errors.New("fund requires the in-memory vault")

type handler func(ctx context.Context, r *Runner, op model.Operation) error

var handlers = map[string]handler{
	OpFund: func(_ context.Context, r *Runner, op model.Operation) error {
		if r.vault == nil {
			return errNoVault
		}
		return r.vault.Credit(op.Owner, op.Amount)
	},
	ledger.OpInitializePool: func(_ context.Context, r *Runner, op model.Operation) error {
		pool, err := r.engine.InitializePool(ledger.InitPoolRequest{
			ID:           op.Pool,
			Vault:        op.Vault,
			TokenMint:    op.Mint,
			Admin:        op.Caller,
			MakerFeeRate: op.MakerFee,
			TakerFeeRate: op.TakerFee,
		})
		if err != nil {
			return err
		}
		if r.vault != nil && pool.Vault != pool.ID {
			r.vault.Delegate(pool.Vault, pool.ID)
		}
		return nil
	},
	ledger.OpStake: func(ctx context.Context, r *Runner, op model.Operation) error {
		_, err := r.engine.Stake(ctx, op.Pool, op.Owner, op.Mint, op.Amount)
		return err
	},
	ledger.OpWithdraw: func(ctx context.Context, r *Runner, op model.Operation) error {
		_, err := r.engine.Withdraw(ctx, op.Pool, op.Owner, op.Amount)
		return err
	},
	ledger.OpRecordTradeProfit: func(_ context.Context, r *Runner, op model.Operation) error {
		_, err := r.engine.RecordTradeProfit(op.Pool, op.Amount)
		return err
	},
	ledger.OpDistributeRewards: func(ctx context.Context, r *Runner, op model.Operation) error {
		_, err := r.engine.DistributeRewards(ctx, op.Pool, op.Owner)
		return err
	},
	ledger.OpAutoCompound: func(_ context.Context, r *Runner, op model.Operation) error {
		_, err := r.engine.AutoCompoundRewards(op.Pool, op.Owner)
		return err
	},
	ledger.OpUpdateFees: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.UpdateFeeStructure(op.Pool, op.Caller, op.MakerFee, op.TakerFee)
	},
	ledger.OpAdjustFees: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.AdjustFeeBasedOnPerformance(op.Pool, op.Caller, op.MakerFee, op.TakerFee)
	},
	ledger.OpSetEmergency: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.SetEmergencyMode(op.Pool, op.Caller, op.Active)
	},
	ledger.OpFundProtection: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.FundProtection(op.Pool, op.Amount)
	},
	ledger.OpCompensateLosses: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.CompensateLpLosses(op.Pool, op.Amount)
	},
	ledger.OpEmergencyWithdraw: func(_ context.Context, r *Runner, op model.Operation) error {
		_, err := r.engine.EmergencyWithdraw(op.Pool, op.Owner)
		return err
	},
	ledger.OpPreventFlashLoans: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.PreventFlashLoans(op.Pool, op.Owner)
	},
	ledger.OpRefreshWeightedStake: func(_ context.Context, r *Runner, op model.Operation) error {
		_, err := r.engine.RefreshWeightedStake(op.Pool)
		return err
	},
	ledger.OpInitGovernance: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.InitializeGovernance(model.Governance{Members: op.Members, Threshold: op.Threshold})
	},
	ledger.OpGovernanceAction: func(ctx context.Context, r *Runner, op model.Operation) error {
		sigs := make([][]byte, len(op.Signatures))
		for i, sig := range op.Signatures {
			sigs[i] = sig
		}
		_, err := r.engine.ExecuteGovernanceAction(ctx, op.ProposalID, sigs)
		return err
	},
	ledger.OpRecordFeeCollection: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.RecordFeeCollection(op.Amount)
	},
	ledger.OpAllocateTreasury: func(_ context.Context, r *Runner, op model.Operation) error {
		return r.engine.AllocateTreasuryFunds(op.Amount)
	},
}
