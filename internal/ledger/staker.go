package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"liquidityStake/internal/model"
)

// applyStake credits amount to s at now. The weighted aggregate moves by
// Weight(new) - Weight(old), both evaluated at the staker's current age.
// Inputs are copies; nothing is committed here.
func applyStake(p model.Pool, s model.Staker, amount uint64, now int64) (model.Pool, model.Staker, error) {
	if amount == 0 {
		return p, s, ErrZeroAmount
	}
	if s.Amount == 0 {
		s.DepositTimestamp = now
	}
	age := now - s.DepositTimestamp

	prev, err := Weight(s.Amount, age)
	if err != nil {
		return p, s, err
	}
	newAmount, err := addU64(s.Amount, amount)
	if err != nil {
		return p, s, err
	}
	next, err := Weight(newAmount, age)
	if err != nil {
		return p, s, err
	}
	totalStaked, err := addU64(p.TotalStaked, amount)
	if err != nil {
		return p, s, err
	}
	weighted, err := addU64(p.TotalWeightedStake, next-prev)
	if err != nil {
		return p, s, err
	}

	s.Amount = newAmount
	p.TotalStaked = totalStaked
	p.TotalWeightedStake = weighted
	return p, s, nil
}

// applyWithdraw debits amount from s once the lock-up has elapsed. The
// weighted aggregate drops by Weight(old) - Weight(new) at the current
// age; an aggregate older than the staker's tier fails with ErrUnderflow.
func applyWithdraw(p model.Pool, s model.Staker, amount uint64, now int64) (model.Pool, model.Staker, error) {
	if amount == 0 {
		return p, s, ErrZeroAmount
	}
	if now < s.DepositTimestamp+MinStakeDuration {
		return p, s, ErrStakeTimeNotReached
	}
	if s.Amount < amount {
		return p, s, ErrInsufficientStake
	}
	age := now - s.DepositTimestamp

	prev, err := Weight(s.Amount, age)
	if err != nil {
		return p, s, err
	}
	newAmount, err := subU64(s.Amount, amount)
	if err != nil {
		return p, s, err
	}
	next, err := Weight(newAmount, age)
	if err != nil {
		return p, s, err
	}
	totalStaked, err := subU64(p.TotalStaked, amount)
	if err != nil {
		return p, s, err
	}
	weighted, err := subU64(p.TotalWeightedStake, prev-next)
	if err != nil {
		return p, s, err
	}

	s.Amount = newAmount
	p.TotalStaked = totalStaked
	p.TotalWeightedStake = weighted
	return p, s, nil
}

// liveWeightedStake sums the weight of every staker at now.
func liveWeightedStake(stakers map[common.Address]model.Staker, now int64) (uint64, error) {
	var total uint64
	for _, s := range stakers {
		w, err := StakerWeight(s, now)
		if err != nil {
			return 0, err
		}
		if total, err = addU64(total, w); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// checkFlashLoan rejects stakers whose deposit is younger than FlashLoanWindow.
func checkFlashLoan(s model.Staker, now int64) error {
	if now < s.DepositTimestamp+FlashLoanWindow {
		return ErrFlashLoanDetected
	}
	return nil
}
