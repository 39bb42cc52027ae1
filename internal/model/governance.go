package model

import "github.com/ethereum/go-ethereum/common"

// Governance holds the identities allowed to approve multi-party actions.
type Governance struct {
	Members   []common.Address `json:"members"`
	Threshold int              `json:"threshold"`
}

// IsMember reports whether addr is an authorized governance identity.
func (g Governance) IsMember(addr common.Address) bool {
	for _, member := range g.Members {
		if member == addr {
			return true
		}
	}
	return false
}

// Treasury tracks protocol fees awaiting allocation.
type Treasury struct {
	CollectedFees uint64 `json:"collected_fees"`
}
