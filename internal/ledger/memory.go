package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Balance is one (asset, account) holding.
type Balance struct {
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
}

type balanceKey struct {
	asset   common.Address
	account common.Address
}

// Memory is an in-process ledger whose pool side is a single custody account.
type Memory struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[balanceKey]*uint256.Int
	logger   *zap.Logger
}

// NewMemory builds an empty ledger holding pool funds under custody.
func NewMemory(custody common.Address, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		custody:  custody,
		balances: make(map[balanceKey]*uint256.Int),
		logger:   logger,
	}
}

// Custody returns the account pool funds are held under.
func (m *Memory) Custody() common.Address {
	return m.custody
}

// Credit mints amount of asset to account.
func (m *Memory) Credit(ctx context.Context, asset, account common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: credit must be positive", ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := balanceKey{asset: asset, account: account}
	next, overflow := new(uint256.Int).AddOverflow(m.balanceLocked(key), amount)
	if overflow {
		return fmt.Errorf("%w: %s of %s", ErrBalanceOverflow, account.Hex(), asset.Hex())
	}
	m.balances[key] = next
	m.logger.Debug("credit", zap.String("asset", asset.Hex()), zap.String("account", account.Hex()), zap.String("amount", amount.ToBig().String()))
	return nil
}

// TransferFrom moves amount of asset from payer into custody.
func (m *Memory) TransferFrom(ctx context.Context, asset, payer common.Address, amount *uint256.Int) error {
	return m.move(ctx, asset, payer, m.custody, amount)
}

// Transfer moves amount of asset from custody to payee.
func (m *Memory) Transfer(ctx context.Context, asset, payee common.Address, amount *uint256.Int) error {
	return m.move(ctx, asset, m.custody, payee, amount)
}

func (m *Memory) move(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: transfer must be positive", ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := balanceKey{asset: asset, account: from}
	toKey := balanceKey{asset: asset, account: to}

	remaining, underflow := new(uint256.Int).SubOverflow(m.balanceLocked(fromKey), amount)
	if underflow {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance,
			from.Hex(), m.balanceLocked(fromKey).ToBig(), asset.Hex(), amount.ToBig())
	}
	if from == to {
		return nil
	}
	credited, overflow := new(uint256.Int).AddOverflow(m.balanceLocked(toKey), amount)
	if overflow {
		return fmt.Errorf("%w: %s of %s", ErrBalanceOverflow, to.Hex(), asset.Hex())
	}

	m.set(fromKey, remaining)
	m.set(toKey, credited)
	return nil
}

// BalanceOf returns a copy of the holding of account in asset.
func (m *Memory) BalanceOf(asset, account common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(uint256.Int).Set(m.balanceLocked(balanceKey{asset: asset, account: account}))
}

// Balances lists all non-zero holdings ordered by asset then account.
func (m *Memory) Balances() []Balance {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Balance, 0, len(m.balances))
	for key, amount := range m.balances {
		out = append(out, Balance{Asset: key.asset, Account: key.account, Amount: new(uint256.Int).Set(amount)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Asset.Bytes(), out[j].Asset.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Account.Bytes(), out[j].Account.Bytes()) < 0
	})
	return out
}

// Restore replaces all holdings.
func (m *Memory) Restore(balances []Balance) error {
	next := make(map[balanceKey]*uint256.Int, len(balances))
	for _, b := range balances {
		if b.Amount == nil || b.Amount.IsZero() {
			continue
		}
		key := balanceKey{asset: b.Asset, account: b.Account}
		if _, dup := next[key]; dup {
			return fmt.Errorf("duplicate balance for %s in %s", b.Account.Hex(), b.Asset.Hex())
		}
		next[key] = new(uint256.Int).Set(b.Amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = next
	return nil
}

func (m *Memory) balanceLocked(key balanceKey) *uint256.Int {
	if amount, ok := m.balances[key]; ok {
		return amount
	}
	return new(uint256.Int)
}

func (m *Memory) set(key balanceKey, amount *uint256.Int) {
	if amount.IsZero() {
		delete(m.balances, key)
		return
	}
	m.balances[key] = amount
}
