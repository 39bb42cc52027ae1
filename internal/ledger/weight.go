package ledger

import "liquidityStake/internal/model"

const (
	// MinStakeDuration is the lock-up before principal can be withdrawn.
	MinStakeDuration int64 = 604_800
	// FlashLoanWindow is the minimum deposit age for sensitive actions.
	FlashLoanWindow int64 = 600

	sixMonths int64 = 15_768_000
	oneYear   int64 = 31_536_000
)

// Weight maps principal and deposit age (seconds) to weighted stake:
// 2x after one year, 1.5x after six months, 1x otherwise. Boundaries are
// exclusive.
func Weight(amount uint64, age int64) (uint64, error) {
	switch {
	case age > oneYear:
		return mulDivU64(amount, 2, 1)
	case age > sixMonths:
		return mulDivU64(amount, 3, 2)
	default:
		return amount, nil
	}
}

// StakerWeight is the live weight of s at now.
func StakerWeight(s model.Staker, now int64) (uint64, error) {
	return Weight(s.Amount, now-s.DepositTimestamp)
}
