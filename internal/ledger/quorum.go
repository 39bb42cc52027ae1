package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"liquidityStake/internal/model"
)

var proposalDomain = []byte("liquidityStake/governance-proposal")

// ProposalDigest is the message governance members sign to approve a
// proposal.
func ProposalDigest(proposalID uint64) common.Hash {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], proposalID)
	return crypto.Keccak256Hash(proposalDomain, id[:])
}

// approvers recovers the signer of every signature and returns the distinct
// governance members among them, in first-seen order. Malformed signatures
// and non-members are ignored.
func approvers(g model.Governance, proposalID uint64, signatures [][]byte) []common.Address {
	digest := ProposalDigest(proposalID)
	seen := make(map[common.Address]struct{}, len(signatures))
	out := make([]common.Address, 0, len(signatures))
	for _, sig := range signatures {
		if len(sig) != crypto.SignatureLength {
			continue
		}
		pub, err := crypto.SigToPub(digest.Bytes(), sig)
		if err != nil {
			continue
		}
		signer := crypto.PubkeyToAddress(*pub)
		if !g.IsMember(signer) {
			continue
		}
		if _, ok := seen[signer]; ok {
			continue
		}
		seen[signer] = struct{}{}
		out = append(out, signer)
	}
	return out
}

func checkQuorum(g model.Governance, proposalID uint64, signatures [][]byte) ([]common.Address, error) {
	threshold := g.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	approved := approvers(g, proposalID, signatures)
	if len(approved) < threshold {
		return approved, ErrNotEnoughSignatures
	}
	return approved, nil
}
