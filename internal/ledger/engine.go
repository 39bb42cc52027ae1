package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityStake/internal/custody"
	"liquidityStake/internal/metrics"
	"liquidityStake/internal/model"
)

const (
	OpInitializePool       = "initialize_pool"
	OpStake                = "stake"
	OpWithdraw             = "withdraw"
	OpRecordTradeProfit    = "record_trade_profit"
	OpDistributeRewards    = "distribute_rewards"
	OpAutoCompound         = "auto_compound_rewards"
	OpUpdateFees           = "update_fee_structure"
	OpAdjustFees           = "adjust_fee_based_on_performance"
	OpSetEmergency         = "set_emergency_mode"
	OpFundProtection       = "fund_protection"
	OpCompensateLosses     = "compensate_lp_losses"
	OpEmergencyWithdraw    = "emergency_withdraw"
	OpPreventFlashLoans    = "prevent_flash_loans"
	OpRefreshWeightedStake = "refresh_weighted_stake"
	OpInitGovernance       = "initialize_governance"
	OpGovernanceAction     = "execute_governance_action"
	OpRecordFeeCollection  = "record_fee_collection"
	OpAllocateTreasury     = "allocate_treasury_funds"
)

// Listener observes committed operations. It runs while the affected
// record is still locked and must not call back into the engine.
type Listener func(model.LedgerEvent)

// ProposalExecutor applies an approved governance proposal.
type ProposalExecutor func(ctx context.Context, proposalID uint64, approvers []common.Address) error

// Config wires the engine's collaborators.
type Config struct {
	Clock    Clock
	Mover    custody.Mover
	Metrics  *metrics.Ledger
	Listener Listener
	Executor ProposalExecutor
}

// Engine owns every pool record and applies operations to it. Each pool is
// guarded by its own lock, so operations on one pool are serialized while
// different pools proceed independently.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[common.Address]*poolRecord

	govMu      sync.Mutex
	governance *model.Governance

	treasuryMu sync.Mutex
	treasury   model.Treasury

	seq atomic.Uint64
}

type poolRecord struct {
	mu      sync.Mutex
	pool    model.Pool
	stakers map[common.Address]model.Staker
}

// InitPoolRequest carries InitializePool inputs.
type InitPoolRequest struct {
	ID           common.Address
	Vault        common.Address
	TokenMint    common.Address
	Admin        common.Address
	MakerFeeRate uint16
	TakerFeeRate uint16
}

func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		pools:  make(map[common.Address]*poolRecord),
	}
}

// InitializePool creates an empty pool record. Fee rates are stored as
// given.
func (e *Engine) InitializePool(req InitPoolRequest) (model.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pools[req.ID]; ok {
		return model.Pool{}, e.reject(OpInitializePool, ErrPoolExists, zap.String("pool", req.ID.Hex()))
	}
	vault := req.Vault
	if vault == (common.Address{}) {
		vault = req.ID
	}
	pool := model.Pool{
		ID:           req.ID,
		Vault:        vault,
		TokenMint:    req.TokenMint,
		Admin:        req.Admin,
		MakerFeeRate: req.MakerFeeRate,
		TakerFeeRate: req.TakerFeeRate,
	}
	rec := &poolRecord{pool: pool, stakers: make(map[common.Address]model.Staker)}
	e.pools[req.ID] = rec
	e.commit(OpInitializePool, rec, model.LedgerEvent{Actor: req.Admin})
	return pool, nil
}

// Stake moves amount from owner into the pool vault and credits it to the
// owner's staker record, creating the record on first stake.
func (e *Engine) Stake(ctx context.Context, poolID, owner, mint common.Address, amount uint64) (model.Staker, error) {
	var out model.Staker
	err := e.withPool(OpStake, poolID, func(rec *poolRecord) error {
		if mint != rec.pool.TokenMint {
			return ErrInvalidTokenMint
		}
		now := e.cfg.Clock.Now()
		staker, ok := rec.stakers[owner]
		if !ok {
			staker = model.Staker{Owner: owner, Pool: poolID}
		}

		pool, staker, err := applyStake(rec.pool, staker, amount, now)
		if err != nil {
			return err
		}
		if err := e.transfer(ctx, custody.Transfer{
			From:      owner,
			To:        rec.pool.Vault,
			Amount:    amount,
			Authority: owner,
		}); err != nil {
			return err
		}

		rec.pool = pool
		rec.stakers[owner] = staker
		out = staker
		e.commit(OpStake, rec, model.LedgerEvent{Timestamp: now, Actor: owner, Amount: amount, StakerAmount: staker.Amount})
		return nil
	})
	return out, err
}

// Withdraw returns amount of principal to owner once the lock-up elapsed.
// The pool authorizes the payout from its vault.
func (e *Engine) Withdraw(ctx context.Context, poolID, owner common.Address, amount uint64) (model.Staker, error) {
	var out model.Staker
	err := e.withPool(OpWithdraw, poolID, func(rec *poolRecord) error {
		staker, ok := rec.stakers[owner]
		if !ok {
			return ErrStakerNotFound
		}
		now := e.cfg.Clock.Now()

		pool, staker, err := applyWithdraw(rec.pool, staker, amount, now)
		if err != nil {
			return err
		}
		if err := e.transfer(ctx, custody.Transfer{
			From:      rec.pool.Vault,
			To:        owner,
			Amount:    amount,
			Authority: rec.pool.ID,
		}); err != nil {
			return err
		}

		rec.pool = pool
		rec.stakers[owner] = staker
		out = staker
		e.commit(OpWithdraw, rec, model.LedgerEvent{Timestamp: now, Actor: owner, Amount: amount, StakerAmount: staker.Amount})
		return nil
	})
	return out, err
}

// RecordTradeProfit adds externally realized profit to the reward balance.
func (e *Engine) RecordTradeProfit(poolID common.Address, profit uint64) (model.Pool, error) {
	var out model.Pool
	err := e.withPool(OpRecordTradeProfit, poolID, func(rec *poolRecord) error {
		pool, err := applyTradeProfit(rec.pool, profit)
		if err != nil {
			return err
		}
		rec.pool = pool
		out = pool
		e.commit(OpRecordTradeProfit, rec, model.LedgerEvent{Amount: profit})
		return nil
	})
	return out, err
}

// DistributeRewards pays owner's weighted share of the reward balance from
// the vault and returns the share.
func (e *Engine) DistributeRewards(ctx context.Context, poolID, owner common.Address) (uint64, error) {
	var share uint64
	err := e.withPool(OpDistributeRewards, poolID, func(rec *poolRecord) error {
		staker, ok := rec.stakers[owner]
		if !ok {
			return ErrStakerNotFound
		}
		now := e.cfg.Clock.Now()

		pool, paid, err := applyDistribution(rec.pool, staker, now)
		if err != nil {
			return err
		}
		if paid > 0 {
			if err := e.transfer(ctx, custody.Transfer{
				From:      rec.pool.Vault,
				To:        owner,
				Amount:    paid,
				Authority: rec.pool.ID,
			}); err != nil {
				return err
			}
		}

		rec.pool = pool
		share = paid
		e.cfg.Metrics.AddRewardsPaid(poolID.Hex(), "distribute", paid)
		e.commit(OpDistributeRewards, rec, model.LedgerEvent{Timestamp: now, Actor: owner, Amount: paid, StakerAmount: staker.Amount})
		return nil
	})
	return share, err
}

// AutoCompoundRewards reclassifies owner's principal-proportional share of
// the reward balance as principal. No custody transfer happens.
func (e *Engine) AutoCompoundRewards(poolID, owner common.Address) (uint64, error) {
	var share uint64
	err := e.withPool(OpAutoCompound, poolID, func(rec *poolRecord) error {
		staker, ok := rec.stakers[owner]
		if !ok {
			return ErrStakerNotFound
		}
		pool, staker, compounded, err := applyCompound(rec.pool, staker)
		if err != nil {
			return err
		}
		rec.pool = pool
		rec.stakers[owner] = staker
		share = compounded
		e.cfg.Metrics.AddRewardsPaid(poolID.Hex(), "compound", compounded)
		e.commit(OpAutoCompound, rec, model.LedgerEvent{Actor: owner, Amount: compounded, StakerAmount: staker.Amount})
		return nil
	})
	return share, err
}

// UpdateFeeStructure sets both fee rates without bounds. It is the
// governance override path; AdjustFeeBasedOnPerformance is the validated
// one.
func (e *Engine) UpdateFeeStructure(poolID, caller common.Address, maker, taker uint16) error {
	return e.updateFees(OpUpdateFees, poolID, caller, maker, taker, false)
}

// AdjustFeeBasedOnPerformance sets both fee rates, each capped at
// MaxFeeRate basis points.
func (e *Engine) AdjustFeeBasedOnPerformance(poolID, caller common.Address, maker, taker uint16) error {
	return e.updateFees(OpAdjustFees, poolID, caller, maker, taker, true)
}

func (e *Engine) updateFees(op string, poolID, caller common.Address, maker, taker uint16, bounded bool) error {
	return e.withPool(op, poolID, func(rec *poolRecord) error {
		pool, err := setFees(rec.pool, caller, maker, taker, bounded)
		if err != nil {
			return err
		}
		rec.pool = pool
		e.commit(op, rec, model.LedgerEvent{Actor: caller})
		return nil
	})
}

// SetEmergencyMode lets the pool admin open or close the emergency
// withdrawal path.
func (e *Engine) SetEmergencyMode(poolID, caller common.Address, active bool) error {
	return e.withPool(OpSetEmergency, poolID, func(rec *poolRecord) error {
		if err := checkAdmin(rec.pool, caller); err != nil {
			return err
		}
		rec.pool.IsEmergency = active
		e.commit(OpSetEmergency, rec, model.LedgerEvent{Actor: caller})
		return nil
	})
}

// FundProtection credits the impermanent-loss protection fund.
func (e *Engine) FundProtection(poolID common.Address, amount uint64) error {
	return e.withPool(OpFundProtection, poolID, func(rec *poolRecord) error {
		pool, err := applyProtectionFunding(rec.pool, amount)
		if err != nil {
			return err
		}
		rec.pool = pool
		e.commit(OpFundProtection, rec, model.LedgerEvent{Amount: amount})
		return nil
	})
}

// CompensateLpLosses debits the protection fund. The payout itself is
// settled outside the ledger.
func (e *Engine) CompensateLpLosses(poolID common.Address, loss uint64) error {
	return e.withPool(OpCompensateLosses, poolID, func(rec *poolRecord) error {
		pool, err := applyCompensation(rec.pool, loss)
		if err != nil {
			return err
		}
		rec.pool = pool
		e.commit(OpCompensateLosses, rec, model.LedgerEvent{Amount: loss})
		return nil
	})
}

// EmergencyWithdraw zeroes owner's principal while emergency mode is on and
// returns the released amount. Payout is settled outside the ledger.
func (e *Engine) EmergencyWithdraw(poolID, owner common.Address) (uint64, error) {
	var released uint64
	err := e.withPool(OpEmergencyWithdraw, poolID, func(rec *poolRecord) error {
		staker, ok := rec.stakers[owner]
		if !ok {
			return ErrStakerNotFound
		}
		pool, staker, amount, err := applyEmergencyWithdraw(rec.pool, staker)
		if err != nil {
			return err
		}
		rec.pool = pool
		rec.stakers[owner] = staker
		released = amount
		e.commit(OpEmergencyWithdraw, rec, model.LedgerEvent{Actor: owner, Amount: amount})
		return nil
	})
	return released, err
}

// PreventFlashLoans fails unless owner's deposit is at least
// FlashLoanWindow seconds old. It mutates nothing.
func (e *Engine) PreventFlashLoans(poolID, owner common.Address) error {
	return e.withPool(OpPreventFlashLoans, poolID, func(rec *poolRecord) error {
		staker, ok := rec.stakers[owner]
		if !ok {
			return ErrStakerNotFound
		}
		return checkFlashLoan(staker, e.cfg.Clock.Now())
	})
}

// RefreshWeightedStake resets TotalWeightedStake to the live sum of
// staker weights at now. Stake and Withdraw only move the aggregate by
// their own delta, so stakers crossing a tenure tier or leaving through
// EmergencyWithdraw make it drift until it is refreshed.
func (e *Engine) RefreshWeightedStake(poolID common.Address) (model.Pool, error) {
	var out model.Pool
	err := e.withPool(OpRefreshWeightedStake, poolID, func(rec *poolRecord) error {
		now := e.cfg.Clock.Now()
		live, err := liveWeightedStake(rec.stakers, now)
		if err != nil {
			return err
		}
		rec.pool.TotalWeightedStake = live
		out = rec.pool
		e.commit(OpRefreshWeightedStake, rec, model.LedgerEvent{Timestamp: now, Amount: live})
		return nil
	})
	return out, err
}

// InitializeGovernance installs the member set. A zero threshold means
// DefaultThreshold.
func (e *Engine) InitializeGovernance(g model.Governance) error {
	e.govMu.Lock()
	defer e.govMu.Unlock()

	validated, err := validateGovernance(g)
	if err != nil {
		return e.reject(OpInitGovernance, err)
	}
	e.governance = &validated
	e.commit(OpInitGovernance, nil, model.LedgerEvent{})
	return nil
}

// ExecuteGovernanceAction checks that at least Threshold distinct members
// signed ProposalDigest(proposalID), then hands the proposal to the
// configured executor.
func (e *Engine) ExecuteGovernanceAction(ctx context.Context, proposalID uint64, signatures [][]byte) ([]common.Address, error) {
	e.govMu.Lock()
	defer e.govMu.Unlock()

	if e.governance == nil {
		return nil, e.reject(OpGovernanceAction, ErrGovernanceNotFound)
	}
	approved, err := checkQuorum(*e.governance, proposalID, signatures)
	if err != nil {
		return approved, e.reject(OpGovernanceAction, err, zap.Uint64("proposal_id", proposalID), zap.Int("approvals", len(approved)))
	}
	if e.cfg.Executor != nil {
		if err := e.cfg.Executor(ctx, proposalID, approved); err != nil {
			return approved, e.reject(OpGovernanceAction, ErrExecutorFailed.wrap(err), zap.Uint64("proposal_id", proposalID))
		}
	}
	e.commit(OpGovernanceAction, nil, model.LedgerEvent{ProposalID: proposalID})
	return approved, nil
}

// RecordFeeCollection credits collected fees to the treasury.
func (e *Engine) RecordFeeCollection(amount uint64) error {
	e.treasuryMu.Lock()
	defer e.treasuryMu.Unlock()

	treasury, err := applyFeeCollection(e.treasury, amount)
	if err != nil {
		return e.reject(OpRecordFeeCollection, err)
	}
	e.treasury = treasury
	e.commit(OpRecordFeeCollection, nil, model.LedgerEvent{Amount: amount})
	return nil
}

// AllocateTreasuryFunds debits collected fees. The payout destination is
// external.
func (e *Engine) AllocateTreasuryFunds(amount uint64) error {
	e.treasuryMu.Lock()
	defer e.treasuryMu.Unlock()

	treasury, err := applyAllocation(e.treasury, amount)
	if err != nil {
		return e.reject(OpAllocateTreasury, err, zap.Uint64("amount", amount))
	}
	e.treasury = treasury
	e.commit(OpAllocateTreasury, nil, model.LedgerEvent{Amount: amount})
	return nil
}

// Pool returns a copy of the pool record.
func (e *Engine) Pool(poolID common.Address) (model.Pool, bool) {
	rec := e.record(poolID)
	if rec == nil {
		return model.Pool{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.pool, true
}

// Staker returns a copy of owner's staker record in poolID.
func (e *Engine) Staker(poolID, owner common.Address) (model.Staker, bool) {
	rec := e.record(poolID)
	if rec == nil {
		return model.Staker{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	s, ok := rec.stakers[owner]
	return s, ok
}

// Stakers returns copies of every staker of poolID ordered by owner.
func (e *Engine) Stakers(poolID common.Address) []model.Staker {
	rec := e.record(poolID)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return sortedStakers(rec.stakers)
}

// Treasury returns a copy of the treasury record.
func (e *Engine) Treasury() model.Treasury {
	e.treasuryMu.Lock()
	defer e.treasuryMu.Unlock()
	return e.treasury
}

// WeightDrift returns the live sum of staker weights at now alongside the
// recorded TotalWeightedStake. They diverge when stakers cross a tenure
// tier or leave through EmergencyWithdraw.
func (e *Engine) WeightDrift(poolID common.Address, now int64) (live uint64, recorded uint64, err error) {
	rec := e.record(poolID)
	if rec == nil {
		return 0, 0, ErrPoolNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if live, err = liveWeightedStake(rec.stakers, now); err != nil {
		return 0, 0, err
	}
	return live, rec.pool.TotalWeightedStake, nil
}

func (e *Engine) record(poolID common.Address) *poolRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pools[poolID]
}

// withPool runs fn with exclusive access to the pool record. fn must
// validate and compute on copies and assign to rec only once every
// fallible step has succeeded.
func (e *Engine) withPool(op string, poolID common.Address, fn func(rec *poolRecord) error) error {
	rec := e.record(poolID)
	if rec == nil {
		return e.reject(op, ErrPoolNotFound, zap.String("pool", poolID.Hex()))
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := fn(rec); err != nil {
		return e.reject(op, err, zap.String("pool", poolID.Hex()))
	}
	return nil
}

func (e *Engine) transfer(ctx context.Context, t custody.Transfer) error {
	if e.cfg.Mover == nil {
		return ErrTransferFailed.wrap(errNoMover)
	}
	if err := e.cfg.Mover.Transfer(ctx, t); err != nil {
		if errors.Is(err, custody.ErrOutcomeUnknown) {
			return ErrTransferUnknown.wrap(err)
		}
		return ErrTransferFailed.wrap(err)
	}
	return nil
}

func (e *Engine) commit(op string, rec *poolRecord, ev model.LedgerEvent) {
	ev.Seq = e.seq.Add(1)
	ev.Op = op
	if ev.Timestamp == 0 {
		ev.Timestamp = e.cfg.Clock.Now()
	}
	fields := []zap.Field{zap.Uint64("seq", ev.Seq)}
	if rec != nil {
		ev.Pool = rec.pool.ID
		ev.TotalStaked = rec.pool.TotalStaked
		ev.TotalRewards = rec.pool.TotalRewards
		ev.TotalWeightedStake = rec.pool.TotalWeightedStake
		e.cfg.Metrics.SetPool(rec.pool.ID.Hex(), rec.pool.TotalStaked, rec.pool.TotalRewards, rec.pool.TotalWeightedStake)
		fields = append(fields,
			zap.String("pool", rec.pool.ID.Hex()),
			zap.Uint64("total_staked", rec.pool.TotalStaked),
			zap.Uint64("total_rewards", rec.pool.TotalRewards),
		)
	}
	if ev.Actor != (common.Address{}) {
		fields = append(fields, zap.String("actor", ev.Actor.Hex()))
	}
	fields = append(fields, zap.Uint64("amount", ev.Amount))

	e.cfg.Metrics.ObserveOperation(op, "ok")
	e.logger.Info(op, fields...)
	if e.cfg.Listener != nil {
		e.cfg.Listener(ev)
	}
}

func (e *Engine) reject(op string, err error, fields ...zap.Field) error {
	code := Code(err)
	e.cfg.Metrics.ObserveOperation(op, code)
	if errors.Is(err, ErrTransferUnknown) {
		e.logger.Error(op+" transfer outcome unknown", append(fields, zap.Error(err))...)
		return err
	}
	e.logger.Debug(op+" rejected", append(fields, zap.String("code", code), zap.Error(err))...)
	return err
}

func sortedStakers(stakers map[common.Address]model.Staker) []model.Staker {
	out := make([]model.Staker, 0, len(stakers))
	for _, s := range stakers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Owner.Cmp(out[j].Owner) < 0
	})
	return out
}
