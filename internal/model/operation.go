package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Operation is one timestamped replay input line.
type Operation struct {
	Line       uint64           `json:"-"`
	Timestamp  int64            `json:"ts"`
	Op         string           `json:"op"`
	Pool       common.Address   `json:"pool"`
	Vault      common.Address   `json:"vault"`
	Caller     common.Address   `json:"caller"`
	Owner      common.Address   `json:"owner"`
	Mint       common.Address   `json:"mint"`
	Amount     uint64           `json:"amount"`
	MakerFee   uint16           `json:"maker_fee"`
	TakerFee   uint16           `json:"taker_fee"`
	Active     bool             `json:"active"`
	ProposalID uint64           `json:"proposal_id"`
	Signatures []hexutil.Bytes  `json:"signatures"`
	Members    []common.Address `json:"members"`
	Threshold  int              `json:"threshold"`
}

// OpFailure records a rejected replay operation.
type OpFailure struct {
	Line      uint64 `json:"line"`
	Timestamp int64  `json:"ts"`
	Op        string `json:"op"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}
