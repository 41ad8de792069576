package postgres

import (
	"context"
	"fmt"
)

// Amounts are unsigned 256-bit integers.
const maxAmount = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pools (
		pool_address     TEXT PRIMARY KEY,
		asset_a          TEXT NOT NULL,
		asset_b          TEXT NOT NULL,
		fee_numerator    INTEGER NOT NULL,
		fee_denominator  INTEGER NOT NULL,
		first_seen_nonce BIGINT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pool_state (
		pool_address TEXT PRIMARY KEY,
		asset_a      TEXT NOT NULL,
		asset_b      TEXT NOT NULL,
		reserve_a    NUMERIC(78,0) NOT NULL,
		reserve_b    NUMERIC(78,0) NOT NULL,
		total_shares NUMERIC(78,0) NOT NULL,
		shares       JSONB NOT NULL,
		nonce        BIGINT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_balances (
		asset      TEXT NOT NULL,
		account    TEXT NOT NULL,
		balance    NUMERIC(78,0) NOT NULL CHECK (balance >= 0 AND balance <= ` + maxAmount + `),
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (asset, account)
	)`,
	`CREATE TABLE IF NOT EXISTS pool_window_metrics (
		pool_address        TEXT NOT NULL,
		window_size_seconds BIGINT NOT NULL,
		window_start_ts     TIMESTAMPTZ NOT NULL,
		window_end_ts       TIMESTAMPTZ NOT NULL,
		swap_count          BIGINT NOT NULL,
		volume_a            NUMERIC NOT NULL,
		volume_b            NUMERIC NOT NULL,
		fee_a               NUMERIC NOT NULL,
		fee_b               NUMERIC NOT NULL,
		add_count           BIGINT NOT NULL,
		remove_count        BIGINT NOT NULL,
		shares_minted       NUMERIC NOT NULL,
		shares_burned       NUMERIC NOT NULL,
		net_flow_a          NUMERIC NOT NULL,
		net_flow_b          NUMERIC NOT NULL,
		first_nonce         BIGINT NOT NULL,
		last_nonce          BIGINT NOT NULL,
		fee_method          TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (pool_address, window_size_seconds, window_start_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS aggregator_state (
		name              TEXT PRIMARY KEY,
		last_processed_ts BIGINT NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables used by Store if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
