package model

import "github.com/ethereum/go-ethereum/common"

// Staker is the per-(owner, pool) principal record.
type Staker struct {
	Owner            common.Address `json:"owner"`
	Pool             common.Address `json:"pool"`
	Amount           uint64         `json:"amount"`
	DepositTimestamp int64          `json:"deposit_timestamp"`
}
