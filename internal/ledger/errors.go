package ledger

import "errors"

// Kind classifies ledger failures. Every failure is terminal for the
// attempted operation.
type Kind string

const (
	KindPrecondition  Kind = "precondition"
	KindAuthorization Kind = "authorization"
	KindArithmetic    Kind = "arithmetic"
	KindCollaborator  Kind = "collaborator"
)

// Error is a typed ledger failure. errors.Is matches both the specific
// error and its kind sentinel.
type Error struct {
	Code string
	Kind Kind
	Msg  string
	err  error
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Msg + ": " + e.err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches sentinels by code, and kind sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Code == e.Code
}

func (e *Error) wrap(err error) *Error {
	return &Error{Code: e.Code, Kind: e.Kind, Msg: e.Msg, err: err}
}

var (
	ErrPrecondition  = &Error{Kind: KindPrecondition, Msg: "precondition violation"}
	ErrAuthorization = &Error{Kind: KindAuthorization, Msg: "authorization failure"}
	ErrArithmetic    = &Error{Kind: KindArithmetic, Msg: "arithmetic failure"}
	ErrCollaborator  = &Error{Kind: KindCollaborator, Msg: "collaborator failure"}
)

var (
	ErrInsufficientStake     = newError(KindPrecondition, "InsufficientStake", "stake: insufficient stake for withdrawal")
	ErrStakeTimeNotReached   = newError(KindPrecondition, "StakeTimeNotReached", "stake: minimum stake duration not reached")
	ErrNoRewardsAvailable    = newError(KindPrecondition, "NoRewardsAvailable", "rewards: no rewards available to distribute")
	ErrNoStakedFunds         = newError(KindPrecondition, "NoStakedFunds", "rewards: no staked funds available")
	ErrNotEnoughFunds        = newError(KindPrecondition, "NotEnoughFunds", "funds: not enough funds available")
	ErrEmergencyNotActivated = newError(KindPrecondition, "EmergencyNotActivated", "pool: emergency state not activated")
	ErrFlashLoanDetected     = newError(KindPrecondition, "FlashLoanDetected", "stake: flash loan detected")
	ErrNotEnoughSignatures   = newError(KindPrecondition, "NotEnoughSignatures", "governance: not enough signatures provided")
	ErrInvalidTokenMint      = newError(KindPrecondition, "InvalidTokenMint", "pool: invalid token mint")
	ErrInvalidFeeRate        = newError(KindPrecondition, "InvalidFeeRate", "pool: invalid fee rate")
	ErrPoolNotFound          = newError(KindPrecondition, "PoolNotFound", "pool: not found")
	ErrPoolExists            = newError(KindPrecondition, "PoolExists", "pool: already initialized")
	ErrStakerNotFound        = newError(KindPrecondition, "StakerNotFound", "stake: staker not found")
	ErrGovernanceNotFound    = newError(KindPrecondition, "GovernanceNotFound", "governance: not initialized")
	ErrInvalidGovernance     = newError(KindPrecondition, "InvalidGovernance", "governance: invalid member set")
	ErrZeroAmount            = newError(KindPrecondition, "ZeroAmount", "stake: amount must be greater than zero")

	ErrUnauthorized = newError(KindAuthorization, "Unauthorized", "governance: unauthorized action")

	ErrOverflow       = newError(KindArithmetic, "Overflow", "math: overflow")
	ErrUnderflow      = newError(KindArithmetic, "Underflow", "math: underflow")
	ErrDivisionByZero = newError(KindArithmetic, "DivisionByZero", "math: division by zero")

	errNoMover = errors.New("custody: no mover configured")

	ErrTransferFailed  = newError(KindCollaborator, "TransferFailed", "custody: transfer failed")
	ErrTransferUnknown = newError(KindCollaborator, "TransferOutcomeUnknown", "custody: transfer outcome unknown")
	ErrExecutorFailed  = newError(KindCollaborator, "ExecutorFailed", "governance: proposal executor failed")
)

// Code returns the ledger error code carried by err, or "" when err is not
// a ledger error.
func Code(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// KindOf returns the failure kind carried by err, or "" when err is not a
// ledger error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
