package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Snapshot is a deep copy of a pool's state.
type Snapshot struct {
	AssetA      common.Address
	AssetB      common.Address
	ReserveA    *uint256.Int
	ReserveB    *uint256.Int
	TotalShares *uint256.Int
	Shares      map[common.Address]*uint256.Int
	Nonce       uint64
}

// Snapshot returns the last committed state.
func (p *Pool) Snapshot() Snapshot {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	shares := make(map[common.Address]*uint256.Int, len(p.shares))
	for owner, balance := range p.shares {
		shares[owner] = clone(balance)
	}
	return Snapshot{
		AssetA:      p.assetA,
		AssetB:      p.assetB,
		ReserveA:    clone(p.state.reserveA),
		ReserveB:    clone(p.state.reserveB),
		TotalShares: clone(p.state.totalShares),
		Shares:      shares,
		Nonce:       p.state.nonce,
	}
}

// CheckInvariants validates the pool's committed state.
func (p *Pool) CheckInvariants() error {
	return p.Snapshot().Validate()
}

// Validate checks the asset pair, that reserves and total shares are all
// zero or all positive, and that the share balances sum to the total.
func (s Snapshot) Validate() error {
	if err := validateAssets(s.AssetA, s.AssetB); err != nil {
		return err
	}

	emptyA, emptyB, emptyT := isZero(s.ReserveA), isZero(s.ReserveB), isZero(s.TotalShares)
	if emptyA != emptyB || emptyA != emptyT {
		return fmt.Errorf("%w: reserves %s/%s with total shares %s", ErrInvalidState,
			FormatAmount(s.ReserveA), FormatAmount(s.ReserveB), FormatAmount(s.TotalShares))
	}

	sum := new(uint256.Int)
	for owner, balance := range s.Shares {
		if owner == (common.Address{}) {
			return fmt.Errorf("%w: share balance for zero address", ErrInvalidState)
		}
		next, err := add(sum, clone(balance))
		if err != nil {
			return fmt.Errorf("%w: share sum: %w", ErrInvalidState, err)
		}
		sum = next
	}
	if !sum.Eq(clone(s.TotalShares)) {
		return fmt.Errorf("%w: shares sum to %s, total is %s", ErrInvalidState,
			FormatAmount(sum), FormatAmount(s.TotalShares))
	}
	return nil
}

// Reset replaces the state of p with snap, which must trade the same assets.
// It is used to roll the pool back when persisting an operation failed.
func (p *Pool) Reset(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.AssetA != p.assetA || snap.AssetB != p.assetB {
		return fmt.Errorf("%w: snapshot trades %s/%s", ErrInvalidState, snap.AssetA.Hex(), snap.AssetB.Hex())
	}
	if _, err := p.enter(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	shares := make(map[common.Address]*uint256.Int, len(snap.Shares))
	for owner, balance := range snap.Shares {
		if isZero(balance) {
			continue
		}
		shares[owner] = clone(balance)
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.state = poolState{
		reserveA:    clone(snap.ReserveA),
		reserveB:    clone(snap.ReserveB),
		totalShares: clone(snap.TotalShares),
		nonce:       snap.Nonce,
	}
	p.shares = shares
	p.logger.Warn("pool state reset", zap.Uint64("nonce", snap.Nonce))
	return nil
}

// Restore rebuilds a pool from a validated snapshot.
func Restore(snap Snapshot, ledger Ledger, sink EventSink, logger *zap.Logger) (*Pool, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	pool, err := NewPool(Config{AssetA: snap.AssetA, AssetB: snap.AssetB}, ledger, sink, logger)
	if err != nil {
		return nil, err
	}

	pool.state = poolState{
		reserveA:    clone(snap.ReserveA),
		reserveB:    clone(snap.ReserveB),
		totalShares: clone(snap.TotalShares),
		nonce:       snap.Nonce,
	}
	for owner, balance := range snap.Shares {
		if isZero(balance) {
			continue
		}
		pool.shares[owner] = clone(balance)
	}
	return pool, nil
}
