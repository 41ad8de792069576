package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ammPool/internal/model"
)

// LoadPoolState returns the stored snapshot of a pool.
func (s *Store) LoadPoolState(ctx context.Context, address string) (model.PoolState, bool, error) {
	if address == "" {
		return model.PoolState{}, false, fmt.Errorf("pool address required")
	}

	var (
		state     model.PoolState
		shares    []byte
		nonce     int64
		updatedAt time.Time
	)
	row := s.db(ctx).QueryRow(ctx, `
		SELECT pool_address, asset_a, asset_b, reserve_a::text, reserve_b::text, total_shares::text, shares, nonce, updated_at
		FROM pool_state WHERE pool_address=$1
	`, address)
	err := row.Scan(&state.Address, &state.AssetA, &state.AssetB, &state.ReserveA, &state.ReserveB, &state.TotalShares, &shares, &nonce, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolState{}, false, nil
		}
		return model.PoolState{}, false, err
	}
	if err := json.Unmarshal(shares, &state.Shares); err != nil {
		return model.PoolState{}, false, fmt.Errorf("parse shares: %w", err)
	}
	state.Nonce = uint64(nonce)
	state.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return state, true, nil
}

// SavePoolState upserts the snapshot of a pool. A stored snapshot with a
// higher nonce is never overwritten. Inside InPoolTx the write commits
// together with the ledger transfers of the operation.
func (s *Store) SavePoolState(ctx context.Context, state model.PoolState) error {
	if state.Address == "" {
		return fmt.Errorf("pool address required")
	}
	shares := state.Shares
	if shares == nil {
		shares = map[string]string{}
	}
	sharesJSON, err := json.Marshal(shares)
	if err != nil {
		return fmt.Errorf("marshal shares: %w", err)
	}

	_, err = s.db(ctx).Exec(ctx, `
		INSERT INTO pool_state (
			pool_address, asset_a, asset_b, reserve_a, reserve_b, total_shares, shares, nonce, updated_at
		) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::jsonb, $8, now())
		ON CONFLICT (pool_address) DO UPDATE SET
			reserve_a = EXCLUDED.reserve_a,
			reserve_b = EXCLUDED.reserve_b,
			total_shares = EXCLUDED.total_shares,
			shares = EXCLUDED.shares,
			nonce = EXCLUDED.nonce,
			updated_at = now()
		WHERE pool_state.nonce <= EXCLUDED.nonce
	`,
		state.Address,
		state.AssetA,
		state.AssetB,
		state.ReserveA,
		state.ReserveB,
		state.TotalShares,
		string(sharesJSON),
		int64(state.Nonce),
	)
	return err
}
