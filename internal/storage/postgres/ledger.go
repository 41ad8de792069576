package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/ledger"
)

// Ledger keeps asset balances in the ledger_balances table. A transfer made
// under Store.InPoolTx runs in a savepoint of that transaction, so a failed
// transfer leaves it usable; outside one it commits on its own.
type Ledger struct {
	store   *Store
	custody common.Address
	logger  *zap.Logger
}

// NewLedger builds a ledger holding pool funds under custody.
func NewLedger(store *Store, custody common.Address, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, custody: custody, logger: logger}
}

// Credit mints amount of asset to account.
func (l *Ledger) Credit(ctx context.Context, asset, account common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: credit must be positive", ledger.ErrInvalidAmount)
	}
	return pgx.BeginFunc(ctx, l.store.db(ctx), func(tx pgx.Tx) error {
		return creditTx(ctx, tx, asset, account, amount)
	})
}

// TransferFrom moves amount of asset from payer into custody.
func (l *Ledger) TransferFrom(ctx context.Context, asset, payer common.Address, amount *uint256.Int) error {
	return l.move(ctx, asset, payer, l.custody, amount)
}

// Transfer moves amount of asset from custody to payee.
func (l *Ledger) Transfer(ctx context.Context, asset, payee common.Address, amount *uint256.Int) error {
	return l.move(ctx, asset, l.custody, payee, amount)
}

// BalanceOf returns the holding of account in asset.
func (l *Ledger) BalanceOf(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	var text string
	row := l.store.db(ctx).QueryRow(ctx, `SELECT balance::text FROM ledger_balances WHERE asset=$1 AND account=$2`, asset.Hex(), account.Hex())
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	return amm.ParseAmount(text)
}

func (l *Ledger) move(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: transfer must be positive", ledger.ErrInvalidAmount)
	}
	err := pgx.BeginFunc(ctx, l.store.db(ctx), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE ledger_balances SET balance = balance - $3::text::numeric, updated_at = now()
			WHERE asset=$1 AND account=$2 AND balance >= $3::text::numeric
		`, asset.Hex(), from.Hex(), amount.ToBig().String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s needs %s of %s", ledger.ErrInsufficientBalance, from.Hex(), amount.ToBig(), asset.Hex())
		}
		return creditTx(ctx, tx, asset, to, amount)
	})
	if err != nil {
		l.logger.Debug("ledger transfer failed", zap.String("asset", asset.Hex()), zap.String("from", from.Hex()), zap.String("to", to.Hex()), zap.Error(err))
	}
	return err
}

func creditTx(ctx context.Context, tx pgx.Tx, asset, account common.Address, amount *uint256.Int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_balances (asset, account, balance, updated_at)
		VALUES ($1, $2, $3::text::numeric, now())
		ON CONFLICT (asset, account) DO UPDATE
		SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = now()
	`, asset.Hex(), account.Hex(), amount.ToBig().String())
	if err != nil {
		return fmt.Errorf("credit %s: %w", account.Hex(), err)
	}
	return nil
}
