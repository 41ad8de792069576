package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammPool/internal/model"
)

// Store provides Postgres persistence for pool state, ledger balances and
// metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool registry records.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, asset_a, asset_b, fee_numerator, fee_denominator, first_seen_nonce, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				asset_a = EXCLUDED.asset_a,
				asset_b = EXCLUDED.asset_b,
				fee_numerator = EXCLUDED.fee_numerator,
				fee_denominator = EXCLUDED.fee_denominator,
				first_seen_nonce = LEAST(pools.first_seen_nonce, EXCLUDED.first_seen_nonce),
				updated_at = now()
		`,
			pool.Address,
			pool.AssetA,
			pool.AssetB,
			int32(pool.FeeNumerator),
			int32(pool.FeeDenominator),
			int64(pool.FirstSeenNonce),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume_a, volume_b, fee_a, fee_b,
				add_count, remove_count, shares_minted, shares_burned,
				net_flow_a, net_flow_b, first_nonce, last_nonce, fee_method, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4,
				$5, $6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric,
				$10, $11, $12::text::numeric, $13::text::numeric,
				$14::text::numeric, $15::text::numeric, $16, $17, $18, now(), now()
			)
			ON CONFLICT (pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				fee_a = EXCLUDED.fee_a,
				fee_b = EXCLUDED.fee_b,
				add_count = EXCLUDED.add_count,
				remove_count = EXCLUDED.remove_count,
				shares_minted = EXCLUDED.shares_minted,
				shares_burned = EXCLUDED.shares_burned,
				net_flow_a = EXCLUDED.net_flow_a,
				net_flow_b = EXCLUDED.net_flow_b,
				first_nonce = EXCLUDED.first_nonce,
				last_nonce = EXCLUDED.last_nonce,
				fee_method = EXCLUDED.fee_method,
				updated_at = now()
		`,
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.VolumeA,
			m.VolumeB,
			m.FeeA,
			m.FeeB,
			int64(m.AddCount),
			int64(m.RemoveCount),
			m.SharesMinted,
			m.SharesBurned,
			m.NetFlowA,
			m.NetFlowB,
			int64(m.FirstNonce),
			int64(m.LastNonce),
			m.FeeMethod,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM aggregator_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregator_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
