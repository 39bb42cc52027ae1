package model

import "github.com/ethereum/go-ethereum/common"

// Snapshot is a full copy of engine state.
type Snapshot struct {
	Pools      []Pool        `json:"pools"`
	Stakers    []Staker      `json:"stakers"`
	Governance *Governance   `json:"governance,omitempty"`
	Treasury   Treasury      `json:"treasury"`
	Custody    *CustodyState `json:"custody,omitempty"`
	LastSeq    uint64        `json:"last_seq"`
	LastLine   uint64        `json:"last_line"`
	TakenAt    int64         `json:"taken_at"`
}

// CustodyState is the in-memory vault's book, saved next to the ledger so
// a resumed replay settles against the same balances.
type CustodyState struct {
	Balances  []CustodyBalance  `json:"balances"`
	Delegates []CustodyDelegate `json:"delegates"`
}

type CustodyBalance struct {
	Account common.Address `json:"account"`
	Amount  uint64         `json:"amount"`
}

type CustodyDelegate struct {
	Account   common.Address `json:"account"`
	Authority common.Address `json:"authority"`
}
