package custody

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Backend is the chain access the ERC20 mover needs. *chain.Client
// satisfies it.
type Backend interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Config controls transaction submission.
type ERC20Config struct {
	Token        common.Address
	GasLimit     uint64
	PollInterval time.Duration
	MaxPolls     int
}

// ERC20Mover settles custody transfers as ERC20 transactions signed by
// locally held keys. A transfer only counts as done once its receipt
// reports success.
type ERC20Mover struct {
	cfg     ERC20Config
	backend Backend
	logger  *zap.Logger

	keysMu sync.RWMutex
	keys   map[common.Address]*ecdsa.PrivateKey
	// sendMu serializes nonce lookup and submission.
	sendMu sync.Mutex

	decimalsMu sync.RWMutex
	decimals   *uint8
}

func NewERC20Mover(cfg ERC20Config, backend Backend, logger *zap.Logger) *ERC20Mover {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 100_000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	return &ERC20Mover{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		keys:    make(map[common.Address]*ecdsa.PrivateKey),
	}
}

// AddKey registers a signing key and returns its address.
func (m *ERC20Mover) AddKey(key *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	m.keysMu.Lock()
	m.keys[addr] = key
	m.keysMu.Unlock()
	return addr
}

// Transfer sends transfer(to, amount) when the source key is held, and
// transferFrom(from, to, amount) signed by the authority otherwise. Once
// the transaction is submitted, any failure to observe a receipt is
// reported as ErrOutcomeUnknown.
func (m *ERC20Mover) Transfer(ctx context.Context, t Transfer) error {
	if m.backend == nil {
		return fmt.Errorf("chain backend is nil")
	}
	if t.Amount == 0 {
		return nil
	}

	tokenABI, err := ERC20ABI()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}
	amount := new(big.Int).SetUint64(t.Amount)

	var (
		key  *ecdsa.PrivateKey
		data []byte
	)
	m.keysMu.RLock()
	fromKey, fromOK := m.keys[t.From]
	authKey, authOK := m.keys[t.Authority]
	m.keysMu.RUnlock()
	switch {
	case fromOK && t.Authority == t.From:
		key = fromKey
		data, err = tokenABI.Pack("transfer", t.To, amount)
	case authOK:
		key = authKey
		data, err = tokenABI.Pack("transferFrom", t.From, t.To, amount)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSigner, t.Authority.Hex())
	}
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}

	tx, err := m.submit(ctx, key, data)
	if err != nil {
		return err
	}

	m.logger.Debug("transfer submitted",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("from", t.From.Hex()),
		zap.String("to", t.To.Hex()),
		zap.Uint64("amount", t.Amount),
	)

	return m.waitReceipt(ctx, tx.Hash())
}

// submit signs and sends one transaction. The nonce is read and used under
// sendMu so concurrent transfers from one key do not collide.
func (m *ERC20Mover) submit(ctx context.Context, key *ecdsa.PrivateKey, data []byte) (*types.Transaction, error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	tx, err := m.signedTx(ctx, key, data)
	if err != nil {
		return nil, err
	}
	if err := m.backend.SendTransaction(ctx, tx); err != nil {
		// A send cut short by the context may still have reached the node.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: send %s: %w", ErrOutcomeUnknown, tx.Hash().Hex(), err)
		}
		return nil, fmt.Errorf("send transfer: %w", err)
	}
	return tx, nil
}

func (m *ERC20Mover) signedTx(ctx context.Context, key *ecdsa.PrivateKey, data []byte) (*types.Transaction, error) {
	sender := crypto.PubkeyToAddress(key.PublicKey)
	chainID, err := m.backend.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := m.backend.PendingNonceAt(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := m.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	token := m.cfg.Token
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      m.cfg.GasLimit,
		To:       &token,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign transfer: %w", err)
	}
	return signed, nil
}

func (m *ERC20Mover) waitReceipt(ctx context.Context, hash common.Hash) error {
	for attempt := 0; attempt < m.cfg.MaxPolls; attempt++ {
		receipt, err := m.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrTransferReverted, hash.Hex())
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("%w: receipt %s: %w", ErrOutcomeUnknown, hash.Hex(), err)
		}

		timer := time.NewTimer(m.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: waiting for %s: %w", ErrOutcomeUnknown, hash.Hex(), ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: %s not mined after %d polls", ErrOutcomeUnknown, hash.Hex(), m.cfg.MaxPolls)
}

// BalanceOf reads the token balance of account at the latest block.
func (m *ERC20Mover) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	values, err := m.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	return bal, nil
}

// Decimals reads the token's decimals, cached after the first call.
func (m *ERC20Mover) Decimals(ctx context.Context) (uint8, error) {
	m.decimalsMu.RLock()
	cached := m.decimals
	m.decimalsMu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	values, err := m.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	m.decimalsMu.Lock()
	m.decimals = &decimals
	m.decimalsMu.Unlock()
	return decimals, nil
}

func (m *ERC20Mover) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if m.backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	tokenABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := tokenABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	token := m.cfg.Token
	resp, err := m.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := tokenABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	return values, nil
}
