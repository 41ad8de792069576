package amm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	assetA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assetB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	alice  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

var errLedgerDown = errors.New("ledger down")

type testLedger struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[common.Address]map[common.Address]*uint256.Int

	failPull   map[common.Address]bool
	failPush   map[common.Address]bool
	onTransfer func(ctx context.Context)
}

func newTestLedger(custody common.Address) *testLedger {
	return &testLedger{
		custody:  custody,
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
		failPull: make(map[common.Address]bool),
		failPush: make(map[common.Address]bool),
	}
}

func (l *testLedger) credit(asset, account common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adjust(asset, account, amount, true)
}

func (l *testLedger) balance(asset, account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return clone(l.balances[asset][account])
}

func (l *testLedger) TransferFrom(ctx context.Context, asset, payer common.Address, amount *uint256.Int) error {
	if l.onTransfer != nil {
		l.onTransfer(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failPull[asset] {
		return errLedgerDown
	}
	return l.move(asset, payer, l.custody, amount)
}

func (l *testLedger) Transfer(ctx context.Context, asset, payee common.Address, amount *uint256.Int) error {
	if l.onTransfer != nil {
		l.onTransfer(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failPush[asset] {
		return errLedgerDown
	}
	return l.move(asset, l.custody, payee, amount)
}

func (l *testLedger) move(asset, from, to common.Address, amount *uint256.Int) error {
	if clone(l.balances[asset][from]).Lt(amount) {
		return fmt.Errorf("insufficient balance of %s", from.Hex())
	}
	l.adjust(asset, from, amount, false)
	l.adjust(asset, to, amount, true)
	return nil
}

func (l *testLedger) adjust(asset, account common.Address, amount *uint256.Int, credit bool) {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[asset] = accounts
	}
	current := clone(accounts[account])
	if credit {
		current.Add(current, amount)
	} else {
		current.Sub(current, amount)
	}
	accounts[account] = current
}

type publishedEvent struct {
	nonce uint64
	event Event
}

type recordingSink struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, nonce uint64, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, publishedEvent{nonce: nonce, event: event})
	return s.err
}

func newTestPool(t *testing.T) (*Pool, *testLedger, *recordingSink) {
	t.Helper()
	ledger := newTestLedger(PoolAddress(assetA, assetB))
	for _, account := range []common.Address{alice, bob} {
		ledger.credit(assetA, account, uint256.NewInt(1_000_000))
		ledger.credit(assetB, account, uint256.NewInt(1_000_000))
	}
	sink := &recordingSink{}
	pool, err := NewPool(Config{AssetA: assetA, AssetB: assetB}, ledger, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool, ledger, sink
}

func seedPool(t *testing.T, pool *Pool) {
	t.Helper()
	if _, err := pool.AddLiquidity(context.Background(), alice, uint256.NewInt(100), uint256.NewInt(200)); err != nil {
		t.Fatalf("seed liquidity: %v", err)
	}
}

func assertReserves(t *testing.T, pool *Pool, wantA, wantB uint64) {
	t.Helper()
	a, b := pool.Reserves()
	if a.Uint64() != wantA || b.Uint64() != wantB {
		t.Fatalf("reserves mismatch: got %d/%d, want %d/%d", a.Uint64(), b.Uint64(), wantA, wantB)
	}
}

func TestNewPoolValidation(t *testing.T) {
	ledger := newTestLedger(common.Address{})
	if _, err := NewPool(Config{AssetA: assetA, AssetB: assetA}, ledger, nil, nil); !errors.Is(err, ErrIdenticalAssets) {
		t.Fatalf("expected identical assets, got %v", err)
	}
	if _, err := NewPool(Config{AssetA: assetA}, ledger, nil, nil); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if _, err := NewPool(Config{AssetA: assetA, AssetB: assetB}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil ledger")
	}
}

func TestFirstDeposit(t *testing.T) {
	pool, ledger, _ := newTestPool(t)

	minted, err := pool.AddLiquidity(context.Background(), alice, uint256.NewInt(100), uint256.NewInt(200))
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if minted.Uint64() != 141 {
		t.Fatalf("minted mismatch: %d", minted.Uint64())
	}
	assertReserves(t, pool, 100, 200)
	if pool.SharesOf(alice).Uint64() != 141 || pool.TotalShares().Uint64() != 141 {
		t.Fatalf("shares mismatch: %d/%d", pool.SharesOf(alice).Uint64(), pool.TotalShares().Uint64())
	}
	if got := ledger.balance(assetA, pool.Address()); got.Uint64() != 100 {
		t.Fatalf("custody balance mismatch: %d", got.Uint64())
	}
}

func TestPrice(t *testing.T) {
	pool, _, _ := newTestPool(t)

	if _, err := pool.Price(); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected no liquidity, got %v", err)
	}

	seedPool(t, pool)
	want, _ := ParseAmount("2000000000000000000")
	for i := 0; i < 2; i++ {
		price, err := pool.Price()
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if !price.Eq(want) {
			t.Fatalf("price mismatch: %s", FormatAmount(price))
		}
	}
}

func TestSwapAForB(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	seedPool(t, pool)

	out, err := pool.SwapAForB(context.Background(), bob, uint256.NewInt(10))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Uint64() != 18 {
		t.Fatalf("amount out mismatch: %d", out.Uint64())
	}
	assertReserves(t, pool, 110, 182)

	if got := ledger.balance(assetA, bob); got.Uint64() != 1_000_000-10 {
		t.Fatalf("trader asset a mismatch: %d", got.Uint64())
	}
	if got := ledger.balance(assetB, bob); got.Uint64() != 1_000_000+18 {
		t.Fatalf("trader asset b mismatch: %d", got.Uint64())
	}
}

func TestSwapBForA(t *testing.T) {
	pool, _, _ := newTestPool(t)
	seedPool(t, pool)

	// 20*997*100 / (200*1000 + 20*997) = 1994000 / 219940
	out, err := pool.SwapBForA(context.Background(), bob, uint256.NewInt(20))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Uint64() != 9 {
		t.Fatalf("amount out mismatch: %d", out.Uint64())
	}
	assertReserves(t, pool, 91, 220)
}

func TestProportionalDeposit(t *testing.T) {
	pool, _, _ := newTestPool(t)
	seedPool(t, pool)

	before, err := pool.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	minted, err := pool.AddLiquidity(context.Background(), bob, uint256.NewInt(50), uint256.NewInt(100))
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if minted.Uint64() != 70 {
		t.Fatalf("minted mismatch: %d", minted.Uint64())
	}
	after, err := pool.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !before.Eq(after) {
		t.Fatalf("price moved: %s -> %s", FormatAmount(before), FormatAmount(after))
	}
	if pool.TotalShares().Uint64() != 211 {
		t.Fatalf("total shares mismatch: %d", pool.TotalShares().Uint64())
	}
}

func TestFullWithdrawal(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	seedPool(t, pool)

	a, b, err := pool.RemoveLiquidity(context.Background(), alice, uint256.NewInt(141))
	if err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}
	if a.Uint64() != 100 || b.Uint64() != 200 {
		t.Fatalf("withdrawn mismatch: %d/%d", a.Uint64(), b.Uint64())
	}
	assertReserves(t, pool, 0, 0)
	if !pool.TotalShares().IsZero() || !pool.SharesOf(alice).IsZero() {
		t.Fatalf("shares should be zero")
	}
	if got := ledger.balance(assetA, alice); got.Uint64() != 1_000_000 {
		t.Fatalf("provider balance mismatch: %d", got.Uint64())
	}
	if _, err := pool.Price(); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected no liquidity, got %v", err)
	}
	if err := pool.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestAddLiquidityErrors(t *testing.T) {
	pool, _, _ := newTestPool(t)
	ctx := context.Background()

	if _, err := pool.AddLiquidity(ctx, alice, new(uint256.Int), uint256.NewInt(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := pool.AddLiquidity(ctx, alice, uint256.NewInt(1), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := pool.AddLiquidity(ctx, common.Address{}, uint256.NewInt(1), uint256.NewInt(1)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	if _, err := pool.AddLiquidity(ctx, alice, huge, huge); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if pool.Nonce() != 0 {
		t.Fatalf("rejected calls must not advance nonce")
	}
}

func TestAddLiquidityTooSmall(t *testing.T) {
	pool, _, _ := newTestPool(t)
	ctx := context.Background()
	if _, err := pool.AddLiquidity(ctx, alice, uint256.NewInt(1000), uint256.NewInt(1000)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := pool.SwapAForB(ctx, bob, uint256.NewInt(100000)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	// Reserve A now far exceeds total shares; a one-unit deposit rounds to zero.
	if _, err := pool.AddLiquidity(ctx, bob, uint256.NewInt(1), uint256.NewInt(1)); !errors.Is(err, ErrInsufficientSharesMinted) {
		t.Fatalf("expected insufficient shares minted, got %v", err)
	}
}

func TestRemoveLiquidityErrors(t *testing.T) {
	pool, _, _ := newTestPool(t)
	ctx := context.Background()
	seedPool(t, pool)

	if _, _, err := pool.RemoveLiquidity(ctx, alice, new(uint256.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, _, err := pool.RemoveLiquidity(ctx, alice, uint256.NewInt(142)); !errors.Is(err, ErrInsufficientShareBalance) {
		t.Fatalf("expected insufficient share balance, got %v", err)
	}
	if _, _, err := pool.RemoveLiquidity(ctx, bob, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientShareBalance) {
		t.Fatalf("expected insufficient share balance, got %v", err)
	}
}

func TestRemoveLiquidityBurnsTooFew(t *testing.T) {
	pool, _, _ := newTestPool(t)
	ctx := context.Background()
	if _, err := pool.AddLiquidity(ctx, alice, uint256.NewInt(1), uint256.NewInt(10000)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// total 100 shares over reserve A of 1: one share redeems floor(1/100) of A.
	if _, _, err := pool.RemoveLiquidity(ctx, alice, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientSharesBurned) {
		t.Fatalf("expected insufficient shares burned, got %v", err)
	}
}

func TestSwapErrors(t *testing.T) {
	pool, _, _ := newTestPool(t)
	ctx := context.Background()

	if _, err := pool.SwapAForB(ctx, bob, uint256.NewInt(10)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}

	if _, err := pool.AddLiquidity(ctx, alice, uint256.NewInt(1000), uint256.NewInt(1000)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := pool.SwapAForB(ctx, bob, new(uint256.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := pool.SwapBForA(ctx, bob, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientOutputAmount) {
		t.Fatalf("expected insufficient output amount, got %v", err)
	}
	assertReserves(t, pool, 1000, 1000)
}

func TestAddLiquidityRefundsOnSecondPullFailure(t *testing.T) {
	pool, ledger, sink := newTestPool(t)
	ledger.failPull[assetB] = true

	_, err := pool.AddLiquidity(context.Background(), alice, uint256.NewInt(100), uint256.NewInt(200))
	if !errors.Is(err, ErrTransferFailed) || !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected transfer failed, got %v", err)
	}
	assertReserves(t, pool, 0, 0)
	if !pool.TotalShares().IsZero() || pool.Nonce() != 0 {
		t.Fatalf("state should be unchanged")
	}
	if got := ledger.balance(assetA, alice); got.Uint64() != 1_000_000 {
		t.Fatalf("asset a not refunded: %d", got.Uint64())
	}
	if len(sink.events) != 0 {
		t.Fatalf("no event expected, got %d", len(sink.events))
	}
}

func TestRemoveLiquidityRestoresOnPushFailure(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	seedPool(t, pool)
	ledger.failPush[assetB] = true

	_, _, err := pool.RemoveLiquidity(context.Background(), alice, uint256.NewInt(70))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}
	assertReserves(t, pool, 100, 200)
	if pool.SharesOf(alice).Uint64() != 141 || pool.TotalShares().Uint64() != 141 {
		t.Fatalf("shares not restored")
	}
	if got := ledger.balance(assetA, alice); got.Uint64() != 1_000_000-100 {
		t.Fatalf("asset a not clawed back: %d", got.Uint64())
	}
	if got := ledger.balance(assetA, pool.Address()); got.Uint64() != 100 {
		t.Fatalf("custody mismatch: %d", got.Uint64())
	}
}

func TestSwapRestoresOnPushFailure(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	seedPool(t, pool)
	ledger.failPush[assetB] = true

	if _, err := pool.SwapAForB(context.Background(), bob, uint256.NewInt(10)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}
	assertReserves(t, pool, 100, 200)
	if got := ledger.balance(assetA, bob); got.Uint64() != 1_000_000 {
		t.Fatalf("input not refunded: %d", got.Uint64())
	}
	if pool.Nonce() != 1 {
		t.Fatalf("nonce mismatch: %d", pool.Nonce())
	}
}

func TestSwapPullFailure(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	seedPool(t, pool)

	poor := common.HexToAddress("0x3333333333333333333333333333333333333333")
	_, err := pool.SwapAForB(context.Background(), poor, uint256.NewInt(10))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}
	assertReserves(t, pool, 100, 200)
	if got := ledger.balance(assetB, poor); !got.IsZero() {
		t.Fatalf("unexpected payout: %d", got.Uint64())
	}
}

func TestReentrantCallRejected(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	seedPool(t, pool)

	var (
		inner    error
		observed *uint256.Int
	)
	ledger.onTransfer = func(ctx context.Context) {
		ledger.onTransfer = nil
		observed, _ = pool.Reserves()
		_, inner = pool.SwapAForB(ctx, bob, uint256.NewInt(10))
	}

	if _, _, err := pool.RemoveLiquidity(context.Background(), alice, uint256.NewInt(70)); err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}
	if !errors.Is(inner, ErrReentrantCall) {
		t.Fatalf("expected reentrant call, got %v", inner)
	}
	// Outbound transfers see the already committed reserves.
	if observed.Uint64() != 51 {
		t.Fatalf("reserve a during push mismatch: %d", observed.Uint64())
	}
}

type callbackSink struct {
	fn func(ctx context.Context)
}

func (s *callbackSink) Publish(ctx context.Context, _ uint64, _ Event) error {
	if s.fn != nil {
		s.fn(ctx)
	}
	return nil
}

func TestReentrantPublishRejected(t *testing.T) {
	ledger := newTestLedger(PoolAddress(assetA, assetB))
	ledger.credit(assetA, alice, uint256.NewInt(1_000))
	ledger.credit(assetB, alice, uint256.NewInt(1_000))
	sink := &callbackSink{}
	pool, err := NewPool(Config{AssetA: assetA, AssetB: assetB}, ledger, sink, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	var inner error
	sink.fn = func(ctx context.Context) {
		sink.fn = nil
		_, inner = pool.SwapAForB(ctx, alice, uint256.NewInt(10))
	}
	if _, err := pool.AddLiquidity(context.Background(), alice, uint256.NewInt(100), uint256.NewInt(200)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if !errors.Is(inner, ErrReentrantCall) {
		t.Fatalf("expected reentrant call, got %v", inner)
	}
	if pool.Nonce() != 1 {
		t.Fatalf("nonce mismatch: %d", pool.Nonce())
	}
}

func TestEventsPublishedOncePerOperation(t *testing.T) {
	pool, _, sink := newTestPool(t)
	ctx := context.Background()
	seedPool(t, pool)

	if _, err := pool.SwapAForB(ctx, bob, uint256.NewInt(10)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, err := pool.SwapAForB(ctx, bob, new(uint256.Int)); err == nil {
		t.Fatalf("expected error for zero swap")
	}
	if _, _, err := pool.RemoveLiquidity(ctx, alice, uint256.NewInt(141)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	want := []string{EventLiquidityAdded, EventSwap, EventLiquidityRemoved}
	if len(sink.events) != len(want) {
		t.Fatalf("event count mismatch: %d", len(sink.events))
	}
	for i, published := range sink.events {
		if published.event.EventName() != want[i] {
			t.Fatalf("event %d mismatch: %s", i, published.event.EventName())
		}
		if published.nonce != uint64(i+1) {
			t.Fatalf("event %d nonce mismatch: %d", i, published.nonce)
		}
	}

	swap, ok := sink.events[1].event.(Swap)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if swap.AssetIn != assetA || swap.AssetOut != assetB || swap.AmountOut.Uint64() != 18 {
		t.Fatalf("swap event mismatch: %+v", swap)
	}
}

func TestPublishErrorDoesNotFailOperation(t *testing.T) {
	pool, _, sink := newTestPool(t)
	sink.err = errors.New("sink full")

	if _, err := pool.AddLiquidity(context.Background(), alice, uint256.NewInt(100), uint256.NewInt(200)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	assertReserves(t, pool, 100, 200)
}

func TestSnapshotRestore(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	ctx := context.Background()
	seedPool(t, pool)
	if _, err := pool.AddLiquidity(ctx, bob, uint256.NewInt(50), uint256.NewInt(100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	snap := pool.Snapshot()
	restored, err := Restore(snap, ledger, nil, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	a, b := restored.Reserves()
	if a.Uint64() != 150 || b.Uint64() != 300 {
		t.Fatalf("reserves mismatch: %d/%d", a.Uint64(), b.Uint64())
	}
	if restored.SharesOf(bob).Uint64() != 70 || restored.Nonce() != 2 {
		t.Fatalf("restored state mismatch")
	}
	if restored.Address() != pool.Address() {
		t.Fatalf("address mismatch")
	}

	snap.Shares[bob] = uint256.NewInt(69)
	if _, err := Restore(snap, ledger, nil, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	empty := Snapshot{AssetA: assetA, AssetB: assetB, ReserveA: uint256.NewInt(1)}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestResetRollsBackState(t *testing.T) {
	pool, _, _ := newTestPool(t)
	ctx := context.Background()
	seedPool(t, pool)
	before := pool.Snapshot()

	if _, err := pool.SwapAForB(ctx, bob, uint256.NewInt(10)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, err := pool.AddLiquidity(ctx, bob, uint256.NewInt(50), uint256.NewInt(100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := pool.Reset(ctx, before); err != nil {
		t.Fatalf("reset: %v", err)
	}
	assertReserves(t, pool, 100, 200)
	if pool.Nonce() != 1 || !pool.SharesOf(bob).IsZero() || pool.SharesOf(alice).Uint64() != 141 {
		t.Fatalf("state not rolled back: nonce=%d", pool.Nonce())
	}

	foreign := before
	foreign.AssetB = bob
	if err := pool.Reset(ctx, foreign); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestConcurrentOperations(t *testing.T) {
	pool, ledger, _ := newTestPool(t)
	ctx := context.Background()
	if _, err := pool.AddLiquidity(ctx, alice, uint256.NewInt(100_000), uint256.NewInt(100_000)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if i%2 == 0 {
					_, _ = pool.SwapAForB(ctx, bob, uint256.NewInt(100))
				} else {
					_, _ = pool.SwapBForA(ctx, bob, uint256.NewInt(100))
				}
				pool.Reserves()
			}
		}(i)
	}
	wg.Wait()

	if err := pool.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	a, b := pool.Reserves()
	if !a.Eq(ledger.balance(assetA, pool.Address())) || !b.Eq(ledger.balance(assetB, pool.Address())) {
		t.Fatalf("reserves diverged from custody balances")
	}
	if pool.Nonce() != 161 {
		t.Fatalf("nonce mismatch: %d", pool.Nonce())
	}
}
