package custody

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidityStake/internal/model"
)

// MemoryVault is an in-process Mover over a balance map. Accounts can
// delegate spending to another authority, which is how a pool signs for
// its vault.
type MemoryVault struct {
	mu        sync.RWMutex
	balances  map[common.Address]uint64
	delegates map[common.Address]common.Address
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances:  make(map[common.Address]uint64),
		delegates: make(map[common.Address]common.Address),
	}
}

// Credit mints amount into account. It is the external funding path.
func (v *MemoryVault) Credit(account common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := v.balances[account] + amount
	if next < amount {
		return fmt.Errorf("credit %s: balance overflow", account.Hex())
	}
	v.balances[account] = next
	return nil
}

// Delegate lets authority move funds out of account.
func (v *MemoryVault) Delegate(account, authority common.Address) {
	v.mu.Lock()
	v.delegates[account] = authority
	v.mu.Unlock()
}

func (v *MemoryVault) Balance(account common.Address) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balances[account]
}

func (v *MemoryVault) Transfer(ctx context.Context, t Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if t.Authority != t.From && v.delegates[t.From] != t.Authority {
		return fmt.Errorf("%w: %s from %s", ErrUnauthorized, t.Authority.Hex(), t.From.Hex())
	}
	from := v.balances[t.From]
	if from < t.Amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, t.From.Hex(), from, t.Amount)
	}
	to := v.balances[t.To]
	if t.From != t.To && to+t.Amount < to {
		return fmt.Errorf("transfer to %s: balance overflow", t.To.Hex())
	}

	v.balances[t.From] = from - t.Amount
	v.balances[t.To] += t.Amount
	return nil
}

// State copies the balance book, sorted by account. Zero balances are
// left out.
func (v *MemoryVault) State() model.CustodyState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	state := model.CustodyState{
		Balances:  make([]model.CustodyBalance, 0, len(v.balances)),
		Delegates: make([]model.CustodyDelegate, 0, len(v.delegates)),
	}
	for account, amount := range v.balances {
		if amount == 0 {
			continue
		}
		state.Balances = append(state.Balances, model.CustodyBalance{Account: account, Amount: amount})
	}
	for account, authority := range v.delegates {
		state.Delegates = append(state.Delegates, model.CustodyDelegate{Account: account, Authority: authority})
	}
	sort.Slice(state.Balances, func(i, j int) bool {
		return state.Balances[i].Account.Cmp(state.Balances[j].Account) < 0
	})
	sort.Slice(state.Delegates, func(i, j int) bool {
		return state.Delegates[i].Account.Cmp(state.Delegates[j].Account) < 0
	})
	return state
}

// Restore replaces the balance book with state.
func (v *MemoryVault) Restore(state model.CustodyState) error {
	balances := make(map[common.Address]uint64, len(state.Balances))
	for _, b := range state.Balances {
		if _, ok := balances[b.Account]; ok {
			return fmt.Errorf("restore custody: duplicate balance for %s", b.Account.Hex())
		}
		balances[b.Account] = b.Amount
	}
	delegates := make(map[common.Address]common.Address, len(state.Delegates))
	for _, d := range state.Delegates {
		if _, ok := delegates[d.Account]; ok {
			return fmt.Errorf("restore custody: duplicate delegate for %s", d.Account.Hex())
		}
		delegates[d.Account] = d.Authority
	}

	v.mu.Lock()
	v.balances = balances
	v.delegates = delegates
	v.mu.Unlock()
	return nil
}
