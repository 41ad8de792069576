package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"ammPool/internal/amm"
	"ammPool/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	PoolAddress  string
	PoolMeta     model.PoolMeta
	WindowStart  uint64
	WindowEnd    uint64
	SwapCount    uint64
	AddCount     uint64
	RemoveCount  uint64
	VolumeA      *big.Int
	VolumeB      *big.Int
	FeeA         *big.Int
	FeeB         *big.Int
	SharesMinted *big.Int
	SharesBurned *big.Int
	NetFlowA     *big.Int
	NetFlowB     *big.Int
	FirstNonce   uint64
	LastNonce    uint64
	LastTS       uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress:  record.Address,
		PoolMeta:     record.PoolMeta,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		VolumeA:      big.NewInt(0),
		VolumeB:      big.NewInt(0),
		FeeA:         big.NewInt(0),
		FeeB:         big.NewInt(0),
		SharesMinted: big.NewInt(0),
		SharesBurned: big.NewInt(0),
		NetFlowA:     big.NewInt(0),
		NetFlowB:     big.NewInt(0),
		FirstNonce:   record.Nonce,
		LastNonce:    record.Nonce,
		LastTS:       record.Timestamp,
	}
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if !a.PoolMeta.Complete() && record.PoolMeta.Complete() {
		a.PoolMeta = record.PoolMeta
	}

	var err error
	switch strings.ToLower(record.EventName) {
	case "swap":
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		err = a.applySwap(swap)
	case "liquidityadded":
		var added model.LiquidityAddedData
		if err := json.Unmarshal(record.Decoded, &added); err != nil {
			return fmt.Errorf("decode liquidity added: %w", err)
		}
		err = a.applyLiquidity(added.AmountA, added.AmountB, added.SharesMinted, true)
	case "liquidityremoved":
		var removed model.LiquidityRemovedData
		if err := json.Unmarshal(record.Decoded, &removed); err != nil {
			return fmt.Errorf("decode liquidity removed: %w", err)
		}
		err = a.applyLiquidity(removed.AmountA, removed.AmountB, removed.SharesBurned, false)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	a.track(record)
	return nil
}

func (a *Accumulator) track(record model.TypedEventRecord) {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
	}
	if record.Nonce < a.FirstNonce {
		a.FirstNonce = record.Nonce
	}
	if record.Nonce > a.LastNonce {
		a.LastNonce = record.Nonce
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	if !a.PoolMeta.Complete() {
		return fmt.Errorf("pool assets unknown for %s", a.PoolAddress)
	}
	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := parseBigInt(swap.AmountOut)
	if err != nil {
		return err
	}

	fee := feeFromAmount(amountIn)
	switch {
	case strings.EqualFold(swap.AssetIn, a.PoolMeta.AssetA) && strings.EqualFold(swap.AssetOut, a.PoolMeta.AssetB):
		a.VolumeA.Add(a.VolumeA, amountIn)
		a.VolumeB.Add(a.VolumeB, amountOut)
		a.FeeA.Add(a.FeeA, fee)
		a.NetFlowA.Add(a.NetFlowA, amountIn)
		a.NetFlowB.Sub(a.NetFlowB, amountOut)
	case strings.EqualFold(swap.AssetIn, a.PoolMeta.AssetB) && strings.EqualFold(swap.AssetOut, a.PoolMeta.AssetA):
		a.VolumeB.Add(a.VolumeB, amountIn)
		a.VolumeA.Add(a.VolumeA, amountOut)
		a.FeeB.Add(a.FeeB, fee)
		a.NetFlowB.Add(a.NetFlowB, amountIn)
		a.NetFlowA.Sub(a.NetFlowA, amountOut)
	default:
		return fmt.Errorf("swap %s->%s does not match pool %s", swap.AssetIn, swap.AssetOut, a.PoolAddress)
	}

	a.SwapCount++
	return nil
}

func (a *Accumulator) applyLiquidity(amountAText, amountBText, sharesText string, added bool) error {
	amountA, err := parseBigInt(amountAText)
	if err != nil {
		return err
	}
	amountB, err := parseBigInt(amountBText)
	if err != nil {
		return err
	}
	shares, err := parseBigInt(sharesText)
	if err != nil {
		return err
	}

	if added {
		a.NetFlowA.Add(a.NetFlowA, amountA)
		a.NetFlowB.Add(a.NetFlowB, amountB)
		a.SharesMinted.Add(a.SharesMinted, shares)
		a.AddCount++
		return nil
	}
	a.NetFlowA.Sub(a.NetFlowA, amountA)
	a.NetFlowB.Sub(a.NetFlowB, amountB)
	a.SharesBurned.Add(a.SharesBurned, shares)
	a.RemoveCount++
	return nil
}

// feeFromAmount approximates the fee kept from amountIn at the pool fee rate.
func feeFromAmount(amountIn *big.Int) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amountIn, big.NewInt(amm.FeeDenominator-amm.FeeNumerator))
	return fee.Div(fee, big.NewInt(amm.FeeDenominator))
}
