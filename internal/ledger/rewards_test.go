package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidityStake/internal/custody"
)

func fundRewards(t *testing.T, h *harness, amount uint64) {
	t.Helper()
	_, err := h.engine.RecordTradeProfit(poolID, amount)
	require.NoError(t, err)
	require.NoError(t, h.vault.Credit(vaultAddr, amount))
}

func TestDistributeRewardsProportionalToWeight(t *testing.T) {
	h := newHarness(t)
	h.stake(t, alice, 300)
	h.stake(t, bob, 700)
	fundRewards(t, h, 1000)
	h.clock.Advance(3600)

	before, _ := h.engine.Staker(poolID, alice)
	paid, err := h.engine.DistributeRewards(context.Background(), poolID, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(300), paid)

	p := h.pool(t)
	require.Equal(t, uint64(700), p.TotalRewards)
	require.Equal(t, uint64(1000), p.TotalWeightedStake, "distribution does not touch weighted stake")
	require.Equal(t, uint64(1000), p.TotalStaked)
	after, _ := h.engine.Staker(poolID, alice)
	require.Equal(t, before, after)
	require.Equal(t, uint64(1_000_000-300+300), h.vault.Balance(alice))
}

func TestDistributeRewardsFloorsShare(t *testing.T) {
	h := newHarness(t)
	h.stake(t, alice, 1)
	h.stake(t, bob, 2)
	fundRewards(t, h, 10)

	paid, err := h.engine.DistributeRewards(context.Background(), poolID, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(3), paid)
	require.Equal(t, uint64(7), h.pool(t).TotalRewards)
}

func TestDistributeZeroShareSkipsTransfer(t *testing.T) {
	transfers := 0
	h := newHarness(t)
	h.engine.cfg.Mover = custody.MoverFunc(func(ctx context.Context, tr custody.Transfer) error {
		transfers++
		return h.vault.Transfer(ctx, tr)
	})
	h.stake(t, alice, 1)
	h.stake(t, bob, 1_000_000)
	fundRewards(t, h, 1)
	transfers = 0

	paid, err := h.engine.DistributeRewards(context.Background(), poolID, alice)
	require.NoError(t, err)
	require.Zero(t, paid)
	require.Zero(t, transfers)
	require.Equal(t, uint64(1), h.pool(t).TotalRewards)
}

func TestDistributeRewardsPreconditions(t *testing.T) {
	h := newHarness(t)
	h.stake(t, alice, 100)

	_, err := h.engine.DistributeRewards(context.Background(), poolID, alice)
	require.ErrorIs(t, err, ErrNoRewardsAvailable)
	_, err = h.engine.AutoCompoundRewards(poolID, alice)
	require.ErrorIs(t, err, ErrNoRewardsAvailable)

	_, err = h.engine.DistributeRewards(context.Background(), poolID, bob)
	require.ErrorIs(t, err, ErrStakerNotFound)

	h.clock.Set(MinStakeDuration)
	_, err = h.engine.Withdraw(context.Background(), poolID, alice, 100)
	require.NoError(t, err)
	fundRewards(t, h, 50)

	_, err = h.engine.DistributeRewards(context.Background(), poolID, alice)
	require.ErrorIs(t, err, ErrNoStakedFunds)
	_, err = h.engine.AutoCompoundRewards(poolID, alice)
	require.ErrorIs(t, err, ErrNoStakedFunds)
}

func TestDistributeTransferFailureKeepsRewards(t *testing.T) {
	h := newHarness(t)
	h.stake(t, alice, 300)
	h.stake(t, bob, 700)
	// Profit recorded without funding the vault.
	_, err := h.engine.RecordTradeProfit(poolID, 5000)
	require.NoError(t, err)

	_, err = h.engine.DistributeRewards(context.Background(), poolID, alice)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, custody.ErrInsufficientBalance)
	require.Equal(t, uint64(5000), h.pool(t).TotalRewards)
}

func TestAutoCompoundUsesPrincipal(t *testing.T) {
	h := newHarness(t)
	h.stake(t, alice, 300)
	h.stake(t, bob, 700)
	fundRewards(t, h, 1000)
	vaultBefore := h.vault.Balance(vaultAddr)

	share, err := h.engine.AutoCompoundRewards(poolID, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(300), share)

	s, _ := h.engine.Staker(poolID, alice)
	require.Equal(t, uint64(600), s.Amount)

	p := h.pool(t)
	require.Equal(t, uint64(1300), p.TotalStaked)
	require.Equal(t, uint64(700), p.TotalRewards)
	require.Equal(t, uint64(1000), p.TotalWeightedStake, "compounding does not touch weighted stake")
	require.Equal(t, vaultBefore, h.vault.Balance(vaultAddr), "compounding moves no custody")
}

func TestRecordTradeProfitOverflow(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.RecordTradeProfit(poolID, ^uint64(0))
	require.NoError(t, err)
	_, err = h.engine.RecordTradeProfit(poolID, 1)
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, ^uint64(0), h.pool(t).TotalRewards)
}
