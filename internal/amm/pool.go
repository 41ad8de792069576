package amm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config identifies the two assets a pool trades.
type Config struct {
	AssetA common.Address
	AssetB common.Address
}

// Pool is a two-asset constant-product market maker.
//
// State-changing operations are serialized end to end. Read queries take a
// short read lock and always observe the last committed state, including
// while a ledger call of an in-flight operation is running.
type Pool struct {
	assetA  common.Address
	assetB  common.Address
	address common.Address

	ledger Ledger
	sink   EventSink
	logger *zap.Logger

	mu sync.Mutex

	stateMu sync.RWMutex
	state   poolState
	shares  map[common.Address]*uint256.Int
}

// poolState values are never mutated in place; commits swap pointers.
type poolState struct {
	reserveA    *uint256.Int
	reserveB    *uint256.Int
	totalShares *uint256.Int
	nonce       uint64
}

type shareEntry struct {
	owner   common.Address
	balance *uint256.Int
}

type callKey struct{ pool *Pool }

// PoolAddress derives the custody account of the pool trading assetA/assetB.
func PoolAddress(assetA, assetB common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(assetA.Bytes(), assetB.Bytes())[12:])
}

// NewPool creates an empty pool. sink may be nil when events are not needed.
func NewPool(cfg Config, ledger Ledger, sink EventSink, logger *zap.Logger) (*Pool, error) {
	if err := validateAssets(cfg.AssetA, cfg.AssetB); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	address := PoolAddress(cfg.AssetA, cfg.AssetB)
	return &Pool{
		assetA:  cfg.AssetA,
		assetB:  cfg.AssetB,
		address: address,
		ledger:  ledger,
		sink:    sink,
		logger:  logger.With(zap.String("pool", address.Hex())),
		state: poolState{
			reserveA:    new(uint256.Int),
			reserveB:    new(uint256.Int),
			totalShares: new(uint256.Int),
		},
		shares: make(map[common.Address]*uint256.Int),
	}, nil
}

func validateAssets(assetA, assetB common.Address) error {
	if assetA == (common.Address{}) || assetB == (common.Address{}) {
		return fmt.Errorf("%w: asset id must not be zero", ErrInvalidAddress)
	}
	if assetA == assetB {
		return fmt.Errorf("%w: %s", ErrIdenticalAssets, assetA.Hex())
	}
	return nil
}

// AddLiquidity deposits amountA and amountB from provider and returns the
// shares minted to it. Both inbound transfers complete before the credit is
// committed; if the second one fails the first is refunded.
func (p *Pool) AddLiquidity(ctx context.Context, provider common.Address, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	ctx, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateAccount(provider); err != nil {
		return nil, err
	}
	amountA, amountB = clone(amountA), clone(amountB)

	prev := p.current()
	minted, err := MintShares(amountA, amountB, prev.reserveA, prev.reserveB, prev.totalShares)
	if err != nil {
		return nil, err
	}

	next := prev
	if next.reserveA, err = add(prev.reserveA, amountA); err != nil {
		return nil, err
	}
	if next.reserveB, err = add(prev.reserveB, amountB); err != nil {
		return nil, err
	}
	if next.totalShares, err = add(prev.totalShares, minted); err != nil {
		return nil, err
	}
	balance, err := add(p.balanceOf(provider), minted)
	if err != nil {
		return nil, err
	}
	next.nonce++

	if err := p.pull(ctx, p.assetA, provider, amountA); err != nil {
		return nil, err
	}
	if err := p.pull(ctx, p.assetB, provider, amountB); err != nil {
		return nil, p.compensate(ctx, err, "refund asset a", func(ctx context.Context) error {
			return p.ledger.Transfer(ctx, p.assetA, provider, amountA)
		})
	}

	p.commit(next, shareEntry{owner: provider, balance: balance})
	p.logger.Debug("liquidity added",
		zap.String("provider", provider.Hex()),
		zap.String("amount_a", FormatAmount(amountA)),
		zap.String("amount_b", FormatAmount(amountB)),
		zap.String("shares_minted", FormatAmount(minted)),
		zap.Uint64("nonce", next.nonce),
	)
	p.publish(ctx, next.nonce, LiquidityAdded{
		Provider:     provider,
		AmountA:      clone(amountA),
		AmountB:      clone(amountB),
		SharesMinted: clone(minted),
	})
	return clone(minted), nil
}

// RemoveLiquidity burns shares of provider and pays out the proportional
// reserves. State is committed before either outbound transfer.
func (p *Pool) RemoveLiquidity(ctx context.Context, provider common.Address, shares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	ctx, err := p.enter(ctx)
	if err != nil {
		return nil, nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateAccount(provider); err != nil {
		return nil, nil, err
	}
	if isZero(shares) {
		return nil, nil, fmt.Errorf("%w: shares must be positive", ErrInvalidAmount)
	}
	shares = clone(shares)

	prev := p.current()
	held := p.balanceOf(provider)
	if shares.Gt(held) {
		return nil, nil, fmt.Errorf("%w: %s holds %s, burning %s",
			ErrInsufficientShareBalance, provider.Hex(), FormatAmount(held), FormatAmount(shares))
	}

	amountA, amountB, err := RedeemAmounts(shares, prev.reserveA, prev.reserveB, prev.totalShares)
	if err != nil {
		return nil, nil, err
	}

	next := prev
	if next.reserveA, err = sub(prev.reserveA, amountA); err != nil {
		return nil, nil, err
	}
	if next.reserveB, err = sub(prev.reserveB, amountB); err != nil {
		return nil, nil, err
	}
	if next.totalShares, err = sub(prev.totalShares, shares); err != nil {
		return nil, nil, err
	}
	remaining, err := sub(held, shares)
	if err != nil {
		return nil, nil, err
	}
	next.nonce++

	p.commit(next, shareEntry{owner: provider, balance: remaining})

	if err := p.push(ctx, p.assetA, provider, amountA); err != nil {
		p.commit(prev, shareEntry{owner: provider, balance: held})
		return nil, nil, err
	}
	if err := p.push(ctx, p.assetB, provider, amountB); err != nil {
		p.commit(prev, shareEntry{owner: provider, balance: held})
		return nil, nil, p.compensate(ctx, err, "claw back asset a", func(ctx context.Context) error {
			return p.ledger.TransferFrom(ctx, p.assetA, provider, amountA)
		})
	}

	p.logger.Debug("liquidity removed",
		zap.String("provider", provider.Hex()),
		zap.String("amount_a", FormatAmount(amountA)),
		zap.String("amount_b", FormatAmount(amountB)),
		zap.String("shares_burned", FormatAmount(shares)),
		zap.Uint64("nonce", next.nonce),
	)
	p.publish(ctx, next.nonce, LiquidityRemoved{
		Provider:     provider,
		AmountA:      clone(amountA),
		AmountB:      clone(amountB),
		SharesBurned: clone(shares),
	})
	return amountA, amountB, nil
}

// SwapAForB sells amountIn of asset A for asset B.
func (p *Pool) SwapAForB(ctx context.Context, trader common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	return p.swap(ctx, trader, true, amountIn)
}

// SwapBForA sells amountIn of asset B for asset A.
func (p *Pool) SwapBForA(ctx context.Context, trader common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	return p.swap(ctx, trader, false, amountIn)
}

func (p *Pool) swap(ctx context.Context, trader common.Address, aToB bool, amountIn *uint256.Int) (*uint256.Int, error) {
	ctx, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateAccount(trader); err != nil {
		return nil, err
	}
	if isZero(amountIn) {
		return nil, fmt.Errorf("%w: amount in must be positive", ErrInvalidAmount)
	}
	amountIn = clone(amountIn)

	prev := p.current()
	if prev.reserveA.IsZero() || prev.reserveB.IsZero() {
		return nil, fmt.Errorf("%w: pool is empty", ErrInsufficientLiquidity)
	}

	assetIn, assetOut := p.assetA, p.assetB
	reserveIn, reserveOut := prev.reserveA, prev.reserveB
	if !aToB {
		assetIn, assetOut = p.assetB, p.assetA
		reserveIn, reserveOut = prev.reserveB, prev.reserveA
	}

	amountOut, err := QuoteOutput(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return nil, fmt.Errorf("%w: %s in yields nothing", ErrInsufficientOutputAmount, FormatAmount(amountIn))
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: out %s, reserve %s",
			ErrInsufficientLiquidityForSwap, FormatAmount(amountOut), FormatAmount(reserveOut))
	}

	newIn, err := add(reserveIn, amountIn)
	if err != nil {
		return nil, err
	}
	newOut, err := sub(reserveOut, amountOut)
	if err != nil {
		return nil, err
	}
	next := prev
	if aToB {
		next.reserveA, next.reserveB = newIn, newOut
	} else {
		next.reserveA, next.reserveB = newOut, newIn
	}
	next.nonce++

	if err := p.pull(ctx, assetIn, trader, amountIn); err != nil {
		return nil, err
	}
	p.commit(next)
	if err := p.push(ctx, assetOut, trader, amountOut); err != nil {
		p.commit(prev)
		return nil, p.compensate(ctx, err, "refund input", func(ctx context.Context) error {
			return p.ledger.Transfer(ctx, assetIn, trader, amountIn)
		})
	}

	p.logger.Debug("swap",
		zap.String("trader", trader.Hex()),
		zap.String("asset_in", assetIn.Hex()),
		zap.String("amount_in", FormatAmount(amountIn)),
		zap.String("amount_out", FormatAmount(amountOut)),
		zap.Uint64("nonce", next.nonce),
	)
	p.publish(ctx, next.nonce, Swap{
		Trader:    trader,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		AmountIn:  clone(amountIn),
		AmountOut: clone(amountOut),
	})
	return amountOut, nil
}

// Price returns reserveB/reserveA scaled by 10^18.
func (p *Pool) Price() (*uint256.Int, error) {
	st := p.current()
	if st.reserveA.IsZero() {
		return nil, ErrNoLiquidity
	}
	return mulDiv(st.reserveB, PricePrecision, st.reserveA)
}

// Reserves returns copies of both reserves.
func (p *Pool) Reserves() (*uint256.Int, *uint256.Int) {
	st := p.current()
	return clone(st.reserveA), clone(st.reserveB)
}

func (p *Pool) SharesOf(owner common.Address) *uint256.Int {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return clone(p.shares[owner])
}

func (p *Pool) TotalShares() *uint256.Int {
	return clone(p.current().totalShares)
}

// Nonce counts committed state-changing operations.
func (p *Pool) Nonce() uint64 {
	return p.current().nonce
}

func (p *Pool) Assets() (common.Address, common.Address) {
	return p.assetA, p.assetB
}

func (p *Pool) Address() common.Address {
	return p.address
}

// enter marks ctx as inside a state-changing call of p. Ledgers and sinks
// must pass the context they receive on to any call back into the pool.
func (p *Pool) enter(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(callKey{pool: p}) != nil {
		return nil, fmt.Errorf("%w: pool %s", ErrReentrantCall, p.address.Hex())
	}
	return context.WithValue(ctx, callKey{pool: p}, struct{}{}), nil
}

func (p *Pool) current() poolState {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// balanceOf is only called with mu held, so the map cannot change underneath.
func (p *Pool) balanceOf(owner common.Address) *uint256.Int {
	if b, ok := p.shares[owner]; ok {
		return b
	}
	return new(uint256.Int)
}

func (p *Pool) commit(next poolState, entries ...shareEntry) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.state = next
	for _, e := range entries {
		if e.balance.IsZero() {
			delete(p.shares, e.owner)
			continue
		}
		p.shares[e.owner] = e.balance
	}
}

func (p *Pool) pull(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	if err := p.ledger.TransferFrom(ctx, asset, from, amount); err != nil {
		return fmt.Errorf("%w: pull %s of %s from %s: %w",
			ErrTransferFailed, FormatAmount(amount), asset.Hex(), from.Hex(), err)
	}
	return nil
}

func (p *Pool) push(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	if err := p.ledger.Transfer(ctx, asset, to, amount); err != nil {
		return fmt.Errorf("%w: push %s of %s to %s: %w",
			ErrTransferFailed, FormatAmount(amount), asset.Hex(), to.Hex(), err)
	}
	return nil
}

// compensate undoes a completed transfer after a later one failed. The
// compensation ignores cancellation of ctx.
func (p *Pool) compensate(ctx context.Context, cause error, what string, fn func(context.Context) error) error {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		p.logger.Error("compensation failed", zap.String("step", what), zap.Error(err), zap.NamedError("cause", cause))
		return errors.Join(cause, fmt.Errorf("%s: %w", what, err))
	}
	return cause
}

func (p *Pool) publish(ctx context.Context, nonce uint64, event Event) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Publish(context.WithoutCancel(ctx), nonce, event); err != nil {
		p.logger.Warn("publish event failed", zap.String("event", event.EventName()), zap.Uint64("nonce", nonce), zap.Error(err))
	}
}

func validateAccount(account common.Address) error {
	if account == (common.Address{}) {
		return fmt.Errorf("%w: account must not be zero", ErrInvalidAddress)
	}
	return nil
}
