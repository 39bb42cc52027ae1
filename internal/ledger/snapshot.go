package ledger

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"liquidityStake/internal/model"
)

// Snapshot copies the full engine state. Each pool is locked while it is
// copied, so every pool in the result is internally consistent.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.RLock()
	ids := make([]common.Address, 0, len(e.pools))
	for id := range e.pools {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })

	snap := model.Snapshot{
		LastSeq: e.seq.Load(),
		TakenAt: e.cfg.Clock.Now(),
	}
	for _, id := range ids {
		rec := e.record(id)
		rec.mu.Lock()
		snap.Pools = append(snap.Pools, rec.pool)
		snap.Stakers = append(snap.Stakers, sortedStakers(rec.stakers)...)
		rec.mu.Unlock()
	}

	e.govMu.Lock()
	if e.governance != nil {
		g := *e.governance
		g.Members = append([]common.Address(nil), g.Members...)
		snap.Governance = &g
	}
	e.govMu.Unlock()

	snap.Treasury = e.Treasury()
	return snap
}

// Restore replaces engine state with snap after checking that every
// pool's TotalStaked equals the sum of its stakers' principal.
func (e *Engine) Restore(snap model.Snapshot) error {
	pools := make(map[common.Address]*poolRecord, len(snap.Pools))
	for _, p := range snap.Pools {
		if _, ok := pools[p.ID]; ok {
			return fmt.Errorf("restore: duplicate pool %s", p.ID.Hex())
		}
		pools[p.ID] = &poolRecord{pool: p, stakers: make(map[common.Address]model.Staker)}
	}
	for _, s := range snap.Stakers {
		rec, ok := pools[s.Pool]
		if !ok {
			return fmt.Errorf("restore: staker %s references unknown pool %s", s.Owner.Hex(), s.Pool.Hex())
		}
		rec.stakers[s.Owner] = s
	}
	for id, rec := range pools {
		if err := checkConservation(rec); err != nil {
			return fmt.Errorf("restore pool %s: %w", id.Hex(), err)
		}
	}

	var governance *model.Governance
	if snap.Governance != nil {
		g, err := validateGovernance(*snap.Governance)
		if err != nil {
			return fmt.Errorf("restore governance: %w", err)
		}
		governance = &g
	}

	e.mu.Lock()
	e.pools = pools
	e.mu.Unlock()

	e.govMu.Lock()
	e.governance = governance
	e.govMu.Unlock()

	e.treasuryMu.Lock()
	e.treasury = snap.Treasury
	e.treasuryMu.Unlock()

	e.seq.Store(snap.LastSeq)
	return nil
}

func checkConservation(rec *poolRecord) error {
	var staked uint64
	var err error
	for _, s := range rec.stakers {
		if staked, err = addU64(staked, s.Amount); err != nil {
			return err
		}
	}
	if staked != rec.pool.TotalStaked {
		return fmt.Errorf("total staked %d != sum of stakers %d", rec.pool.TotalStaked, staked)
	}
	return nil
}
