package model

import "github.com/ethereum/go-ethereum/common"

// Pool is the aggregate ledger record for one stake/reward market.
type Pool struct {
	ID                            common.Address `json:"id"`
	Vault                         common.Address `json:"vault"`
	TokenMint                     common.Address `json:"token_mint"`
	Admin                         common.Address `json:"admin"`
	TotalStaked                   uint64         `json:"total_staked"`
	TotalRewards                  uint64         `json:"total_rewards"`
	TotalWeightedStake            uint64         `json:"total_weighted_stake"`
	MakerFeeRate                  uint16         `json:"maker_fee_rate"`
	TakerFeeRate                  uint16         `json:"taker_fee_rate"`
	ImpermanentLossProtectionFund uint64         `json:"impermanent_loss_protection_fund"`
	IsEmergency                   bool           `json:"is_emergency"`
}
