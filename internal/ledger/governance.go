package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"liquidityStake/internal/model"
)

// MaxFeeRate is the upper bound, in basis points, enforced by the
// performance-based fee path.
const MaxFeeRate uint16 = 1000

// DefaultThreshold is the number of distinct member approvals required when
// a governance record does not set one.
const DefaultThreshold = 2

func checkAdmin(p model.Pool, caller common.Address) error {
	if caller != p.Admin {
		return ErrUnauthorized
	}
	return nil
}

// setFees is the single fee setter. bounded=false is the unconditional
// governance override used by UpdateFeeStructure.
func setFees(p model.Pool, caller common.Address, maker, taker uint16, bounded bool) (model.Pool, error) {
	if err := checkAdmin(p, caller); err != nil {
		return p, err
	}
	if bounded && (maker > MaxFeeRate || taker > MaxFeeRate) {
		return p, ErrInvalidFeeRate
	}
	p.MakerFeeRate = maker
	p.TakerFeeRate = taker
	return p, nil
}

func applyCompensation(p model.Pool, loss uint64) (model.Pool, error) {
	if p.ImpermanentLossProtectionFund < loss {
		return p, ErrNotEnoughFunds
	}
	fund, err := subU64(p.ImpermanentLossProtectionFund, loss)
	if err != nil {
		return p, err
	}
	p.ImpermanentLossProtectionFund = fund
	return p, nil
}

func applyProtectionFunding(p model.Pool, amount uint64) (model.Pool, error) {
	fund, err := addU64(p.ImpermanentLossProtectionFund, amount)
	if err != nil {
		return p, err
	}
	p.ImpermanentLossProtectionFund = fund
	return p, nil
}

// applyEmergencyWithdraw zeroes the staker's principal regardless of
// lock-up. The weight snapshot and TotalWeightedStake are not adjusted.
func applyEmergencyWithdraw(p model.Pool, s model.Staker) (model.Pool, model.Staker, uint64, error) {
	if !p.IsEmergency {
		return p, s, 0, ErrEmergencyNotActivated
	}
	amount := s.Amount
	staked, err := subU64(p.TotalStaked, amount)
	if err != nil {
		return p, s, 0, err
	}
	s.Amount = 0
	p.TotalStaked = staked
	return p, s, amount, nil
}

func applyAllocation(t model.Treasury, amount uint64) (model.Treasury, error) {
	if t.CollectedFees < amount {
		return t, ErrNotEnoughFunds
	}
	fees, err := subU64(t.CollectedFees, amount)
	if err != nil {
		return t, err
	}
	t.CollectedFees = fees
	return t, nil
}

func applyFeeCollection(t model.Treasury, amount uint64) (model.Treasury, error) {
	fees, err := addU64(t.CollectedFees, amount)
	if err != nil {
		return t, err
	}
	t.CollectedFees = fees
	return t, nil
}

func validateGovernance(g model.Governance) (model.Governance, error) {
	if g.Threshold == 0 {
		g.Threshold = DefaultThreshold
	}
	seen := make(map[common.Address]struct{}, len(g.Members))
	members := make([]common.Address, 0, len(g.Members))
	for _, member := range g.Members {
		if member == (common.Address{}) {
			return g, ErrInvalidGovernance
		}
		if _, ok := seen[member]; ok {
			continue
		}
		seen[member] = struct{}{}
		members = append(members, member)
	}
	if g.Threshold < 1 || g.Threshold > len(members) {
		return g, ErrInvalidGovernance
	}
	g.Members = members
	return g, nil
}
