package custody

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	vault = common.HexToAddress("0x2222222222222222222222222222222222222222")
	pool  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestMemoryVaultTransfer(t *testing.T) {
	v := NewMemoryVault()
	require.NoError(t, v.Credit(owner, 100))

	require.NoError(t, v.Transfer(context.Background(), Transfer{From: owner, To: vault, Amount: 60, Authority: owner}))
	require.Equal(t, uint64(40), v.Balance(owner))
	require.Equal(t, uint64(60), v.Balance(vault))

	err := v.Transfer(context.Background(), Transfer{From: owner, To: vault, Amount: 41, Authority: owner})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, uint64(40), v.Balance(owner))
	require.Equal(t, uint64(60), v.Balance(vault))
}

func TestMemoryVaultAuthority(t *testing.T) {
	v := NewMemoryVault()
	require.NoError(t, v.Credit(vault, 10))

	err := v.Transfer(context.Background(), Transfer{From: vault, To: owner, Amount: 5, Authority: pool})
	require.ErrorIs(t, err, ErrUnauthorized)

	v.Delegate(vault, pool)
	require.NoError(t, v.Transfer(context.Background(), Transfer{From: vault, To: owner, Amount: 5, Authority: pool}))
	require.Equal(t, uint64(5), v.Balance(owner))

	err = v.Transfer(context.Background(), Transfer{From: vault, To: owner, Amount: 1, Authority: owner})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestMemoryVaultOverflow(t *testing.T) {
	v := NewMemoryVault()
	require.NoError(t, v.Credit(owner, math.MaxUint64))
	require.Error(t, v.Credit(owner, 1))

	require.NoError(t, v.Credit(vault, 1))
	err := v.Transfer(context.Background(), Transfer{From: vault, To: owner, Amount: 1, Authority: vault})
	require.Error(t, err)
	require.Equal(t, uint64(1), v.Balance(vault))
}

func TestMemoryVaultCancelled(t *testing.T) {
	v := NewMemoryVault()
	require.NoError(t, v.Credit(owner, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := v.Transfer(ctx, Transfer{From: owner, To: vault, Amount: 1, Authority: owner})
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, uint64(1), v.Balance(owner))
}

func TestMemoryVaultStateRoundTrip(t *testing.T) {
	v := NewMemoryVault()
	require.NoError(t, v.Credit(owner, 40))
	require.NoError(t, v.Credit(vault, 60))
	require.NoError(t, v.Credit(pool, 0))
	v.Delegate(vault, pool)

	state := v.State()
	require.Len(t, state.Balances, 2, "zero balances are left out")
	require.Len(t, state.Delegates, 1)

	restored := NewMemoryVault()
	require.NoError(t, restored.Credit(pool, 999))
	require.NoError(t, restored.Restore(state))
	require.Equal(t, state, restored.State())
	require.Zero(t, restored.Balance(pool))
	require.NoError(t, restored.Transfer(context.Background(), Transfer{From: vault, To: owner, Amount: 60, Authority: pool}))
	require.Equal(t, uint64(100), restored.Balance(owner))

	state.Balances = append(state.Balances, state.Balances[0])
	require.ErrorContains(t, NewMemoryVault().Restore(state), "duplicate balance")
}
