package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/config"
	"ammPool/internal/dex"
	"ammPool/internal/ledger"
	"ammPool/internal/model"
	"ammPool/internal/replay"
	"ammPool/internal/state"
	"ammPool/internal/storage"
	"ammPool/internal/storage/postgres"
)

var errNotInitialized = errors.New("pool not initialized, run init first")

type openMode int

const (
	openExisting openMode = iota
	openNew
	openOrCreate
)

// poolEnv is an opened pool with its ledger and snapshot store.
type poolEnv struct {
	cfg    config.PoolConfig
	pool   *amm.Pool
	states state.SnapshotStore
	memory *ledger.Memory
	ledger *postgres.Ledger
	store  *postgres.Store
	outbox *dex.Outbox
	logger *zap.Logger

	// created is set when openPool built a new empty pool.
	created bool
}

// openPool loads the configured pool, or creates it empty as mode allows.
func openPool(ctx context.Context, cfg config.PoolConfig, logger *zap.Logger, mode openMode) (*poolEnv, error) {
	env := &poolEnv{cfg: cfg, logger: logger}

	switch cfg.Ledger {
	case config.LedgerPostgres:
		assetA, assetB, err := configuredAssets(cfg)
		if err != nil {
			return nil, err
		}
		address := amm.PoolAddress(assetA, assetB)

		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		env.store = store
		if err := store.Migrate(ctx); err != nil {
			env.Close()
			return nil, err
		}
		env.ledger = postgres.NewLedger(store, address, logger.Named("ledger"))
		env.states = &state.DBStore{Store: store, Address: address.Hex()}

	default:
		env.states = &state.FileStore{Path: cfg.StateFile}
	}

	st, loaded, err := env.states.Load(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	switch {
	case loaded && mode == openNew:
		env.Close()
		return nil, fmt.Errorf("pool %s already initialized", st.Address)
	case !loaded && mode == openExisting:
		env.Close()
		return nil, errNotInitialized
	}

	if loaded {
		err = env.restore(st)
	} else {
		err = env.create()
		env.created = true
	}
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *poolEnv) create() error {
	assetA, assetB, err := configuredAssets(e.cfg)
	if err != nil {
		return err
	}
	address := amm.PoolAddress(assetA, assetB)
	if e.ledger == nil {
		e.memory = ledger.NewMemory(address, e.logger.Named("ledger"))
	}
	sink, err := e.eventSink(address)
	if err != nil {
		return err
	}
	pool, err := amm.NewPool(amm.Config{AssetA: assetA, AssetB: assetB}, e.poolLedger(), sink, e.logger)
	if err != nil {
		return err
	}
	e.pool = pool
	return nil
}

func (e *poolEnv) restore(st model.PoolState) error {
	snap, balances, err := state.ToSnapshot(st)
	if err != nil {
		return err
	}
	if e.cfg.AssetA != "" || e.cfg.AssetB != "" {
		assetA, assetB, err := configuredAssets(e.cfg)
		if err != nil {
			return err
		}
		if assetA != snap.AssetA || assetB != snap.AssetB {
			return fmt.Errorf("stored pool trades %s/%s, configured %s/%s",
				snap.AssetA.Hex(), snap.AssetB.Hex(), assetA.Hex(), assetB.Hex())
		}
	}

	address := amm.PoolAddress(snap.AssetA, snap.AssetB)
	if e.ledger == nil {
		e.memory = ledger.NewMemory(address, e.logger.Named("ledger"))
		if err := e.memory.Restore(balances); err != nil {
			return err
		}
	}
	sink, err := e.eventSink(address)
	if err != nil {
		return err
	}
	pool, err := amm.Restore(snap, e.poolLedger(), sink, e.logger)
	if err != nil {
		return err
	}
	e.pool = pool
	return nil
}

func (e *poolEnv) poolLedger() amm.Ledger {
	if e.ledger != nil {
		return e.ledger
	}
	return e.memory
}

// funder returns whichever ledger backs the pool.
func (e *poolEnv) funder() replay.Funder {
	if e.ledger != nil {
		return e.ledger
	}
	return e.memory
}

// eventSink queues events in an outbox that save and apply flush once the
// operations behind them are persisted.
func (e *poolEnv) eventSink(address common.Address) (amm.EventSink, error) {
	if e.cfg.Events == "" {
		return nil, nil
	}
	logSink, err := dex.NewLogSink(address, storage.NewJsonlStorage(e.cfg.Events), e.logger.Named("events"))
	if err != nil {
		return nil, err
	}
	outbox, err := dex.NewOutbox(logSink, e.logger.Named("events"))
	if err != nil {
		return nil, err
	}
	e.outbox = outbox
	return outbox, nil
}

func (e *poolEnv) balanceOf(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	if e.ledger != nil {
		return e.ledger.BalanceOf(ctx, asset, account)
	}
	return e.memory.BalanceOf(asset, account), nil
}

// apply runs op. With the postgres ledger the transfers of op and the
// pool_state row commit in one transaction; if that fails the pool is rolled
// back and the error is marked replay.ErrAborted. With the memory ledger the
// operation becomes durable on the next save.
func (e *poolEnv) apply(ctx context.Context, op model.Operation) (model.OperationResult, error) {
	if e.store == nil {
		return replay.Apply(ctx, e.pool, e.funder(), op)
	}

	before := e.pool.Snapshot()
	var (
		result   model.OperationResult
		rejected error
	)
	err := e.store.InPoolTx(ctx, e.pool.Address().Hex(), before.Nonce, func(ctx context.Context) error {
		result, rejected = replay.Apply(ctx, e.pool, e.ledger, op)
		if rejected != nil {
			return rejected
		}
		return e.states.Save(ctx, state.FromSnapshot(e.pool.Snapshot(), nil))
	})
	if err == nil {
		e.flush(ctx)
		return result, nil
	}

	if e.outbox != nil {
		e.outbox.Discard()
	}
	if e.pool.Nonce() != before.Nonce {
		if rerr := e.pool.Reset(ctx, before); rerr != nil {
			return result, errors.Join(fmt.Errorf("%w: %w", replay.ErrAborted, err), rerr)
		}
	}
	if rejected != nil && errors.Is(err, rejected) {
		return result, err
	}
	return result, fmt.Errorf("%w: %w", replay.ErrAborted, err)
}

// save persists the pool snapshot, and ledger balances for the memory
// ledger, then forwards queued events. With the postgres ledger the row is
// only written while the stored nonce still matches the pool.
func (e *poolEnv) save(ctx context.Context) error {
	var err error
	if e.store != nil {
		err = e.store.InPoolTx(ctx, e.pool.Address().Hex(), e.pool.Nonce(), func(ctx context.Context) error {
			return e.states.Save(ctx, state.FromSnapshot(e.pool.Snapshot(), nil))
		})
	} else {
		err = e.states.Save(ctx, state.FromSnapshot(e.pool.Snapshot(), e.memory.Balances()))
	}
	if err != nil {
		return err
	}
	e.flush(ctx)
	return nil
}

func (e *poolEnv) flush(ctx context.Context) {
	if e.outbox == nil {
		return
	}
	if err := e.outbox.Flush(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("write events failed", zap.Int("pending", e.outbox.Pending()), zap.Error(err))
	}
}

func (e *poolEnv) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

func configuredAssets(cfg config.PoolConfig) (common.Address, common.Address, error) {
	assetA, err := amm.ParseAddress(cfg.AssetA)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("asset-a: %w", err)
	}
	assetB, err := amm.ParseAddress(cfg.AssetB)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("asset-b: %w", err)
	}
	return assetA, assetB, nil
}
