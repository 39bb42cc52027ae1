package custody

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("custody: insufficient balance")
	ErrUnauthorized        = errors.New("custody: authority may not move funds from source")
	ErrUnknownSigner       = errors.New("custody: no signing key for authority")
	ErrTransferReverted    = errors.New("custody: transfer reverted")
	// ErrOutcomeUnknown means the transfer was submitted but its result
	// was never observed. Funds may still move.
	ErrOutcomeUnknown      = errors.New("custody: transfer outcome unknown")
)

// Transfer describes one custody movement. Authority is the identity that
// authorizes debiting From: the owner for deposits, the pool for payouts.
type Transfer struct {
	From      common.Address
	To        common.Address
	Amount    uint64
	Authority common.Address
}

// Mover moves exactly Amount of the configured asset or fails without
// moving anything. The one exception is an error wrapping
// ErrOutcomeUnknown, after which the caller must reconcile before going on.
type Mover interface {
	Transfer(ctx context.Context, t Transfer) error
}

// MoverFunc adapts a function to Mover.
type MoverFunc func(ctx context.Context, t Transfer) error

func (f MoverFunc) Transfer(ctx context.Context, t Transfer) error {
	return f(ctx, t)
}
