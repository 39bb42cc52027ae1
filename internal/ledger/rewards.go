package ledger

import "liquidityStake/internal/model"

// distributionShare is floor(weight(s, now) * TotalRewards / TotalWeightedStake).
func distributionShare(p model.Pool, s model.Staker, now int64) (uint64, error) {
	if p.TotalRewards == 0 {
		return 0, ErrNoRewardsAvailable
	}
	if p.TotalWeightedStake == 0 {
		return 0, ErrNoStakedFunds
	}
	weight, err := StakerWeight(s, now)
	if err != nil {
		return 0, err
	}
	return mulDivU64(weight, p.TotalRewards, p.TotalWeightedStake)
}

// applyDistribution debits the staker's weighted share from the reward
// balance. The staker record and TotalWeightedStake are left untouched.
func applyDistribution(p model.Pool, s model.Staker, now int64) (model.Pool, uint64, error) {
	share, err := distributionShare(p, s, now)
	if err != nil {
		return p, 0, err
	}
	remaining, err := subU64(p.TotalRewards, share)
	if err != nil {
		return p, 0, err
	}
	p.TotalRewards = remaining
	return p, share, nil
}

// applyCompound reclassifies floor(Amount * TotalRewards / TotalStaked) of
// rewards as principal. It uses raw principal, not weighted stake, and does
// not touch TotalWeightedStake.
func applyCompound(p model.Pool, s model.Staker) (model.Pool, model.Staker, uint64, error) {
	if p.TotalRewards == 0 {
		return p, s, 0, ErrNoRewardsAvailable
	}
	if p.TotalStaked == 0 {
		return p, s, 0, ErrNoStakedFunds
	}

	share, err := mulDivU64(s.Amount, p.TotalRewards, p.TotalStaked)
	if err != nil {
		return p, s, 0, err
	}
	amount, err := addU64(s.Amount, share)
	if err != nil {
		return p, s, 0, err
	}
	rewards, err := subU64(p.TotalRewards, share)
	if err != nil {
		return p, s, 0, err
	}
	staked, err := addU64(p.TotalStaked, share)
	if err != nil {
		return p, s, 0, err
	}

	s.Amount = amount
	p.TotalRewards = rewards
	p.TotalStaked = staked
	return p, s, share, nil
}

func applyTradeProfit(p model.Pool, profit uint64) (model.Pool, error) {
	rewards, err := addU64(p.TotalRewards, profit)
	if err != nil {
		return p, err
	}
	p.TotalRewards = rewards
	return p, nil
}
