package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStaleState is returned when the stored pool state moved past the state
// an operation was computed from.
var ErrStaleState = errors.New("stale pool state")

// dbtx is implemented by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// db returns the transaction carried by ctx, or the pool outside one.
func (s *Store) db(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// InPoolTx runs fn in one transaction that holds the advisory lock of the
// pool at address. Ledger and pool_state calls made with the ctx passed to
// fn join the transaction. The stored pool nonce must equal nonce, or no row
// may exist yet when nonce is zero; otherwise ErrStaleState is returned and
// fn is not called.
func (s *Store) InPoolTx(ctx context.Context, address string, nonce uint64, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fmt.Errorf("pool transaction already open")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, address); err != nil {
			return fmt.Errorf("lock pool %s: %w", address, err)
		}

		var stored int64
		err := tx.QueryRow(ctx, `SELECT nonce FROM pool_state WHERE pool_address=$1`, address).Scan(&stored)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if nonce != 0 {
				return fmt.Errorf("%w: pool %s has no stored state, expected nonce %d", ErrStaleState, address, nonce)
			}
		case err != nil:
			return err
		case uint64(stored) != nonce:
			return fmt.Errorf("%w: pool %s stored at nonce %d, expected %d", ErrStaleState, address, stored, nonce)
		}

		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
