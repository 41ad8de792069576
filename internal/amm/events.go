package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	EventLiquidityAdded   = "LiquidityAdded"
	EventLiquidityRemoved = "LiquidityRemoved"
	EventSwap             = "Swap"
)

// Event is one of LiquidityAdded, LiquidityRemoved or Swap.
type Event interface {
	EventName() string
}

// EventSink receives one event per committed operation, tagged with the
// pool nonce of that operation.
//
// Publish runs under the pool's operation lock, with the same re-entry rule
// as Ledger: calls back into the pool must use the ctx passed to Publish.
type EventSink interface {
	Publish(ctx context.Context, nonce uint64, event Event) error
}

type LiquidityAdded struct {
	Provider     common.Address
	AmountA      *uint256.Int
	AmountB      *uint256.Int
	SharesMinted *uint256.Int
}

func (LiquidityAdded) EventName() string { return EventLiquidityAdded }

type LiquidityRemoved struct {
	Provider     common.Address
	AmountA      *uint256.Int
	AmountB      *uint256.Int
	SharesBurned *uint256.Int
}

func (LiquidityRemoved) EventName() string { return EventLiquidityRemoved }

type Swap struct {
	Trader    common.Address
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

func (Swap) EventName() string { return EventSwap }
