package model

import "github.com/ethereum/go-ethereum/common"

// LedgerEvent is the journal record emitted for every committed operation.
// Pool aggregates are captured after the operation was applied.
type LedgerEvent struct {
	Seq                uint64         `json:"seq"`
	Op                 string         `json:"op"`
	Timestamp          int64          `json:"timestamp"`
	Pool               common.Address `json:"pool"`
	Actor              common.Address `json:"actor"`
	Amount             uint64         `json:"amount"`
	TotalStaked        uint64         `json:"total_staked"`
	TotalRewards       uint64         `json:"total_rewards"`
	TotalWeightedStake uint64         `json:"total_weighted_stake"`
	StakerAmount       uint64         `json:"staker_amount"`
	ProposalID         uint64         `json:"proposal_id,omitempty"`
}
