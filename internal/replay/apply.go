package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammPool/internal/amm"
	"ammPool/internal/dex"
	"ammPool/internal/model"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Funder credits balances into the ledger backing a pool.
type Funder interface {
	Credit(ctx context.Context, asset, account common.Address, amount *uint256.Int) error
}

// Apply runs one operation against pool. A fund operation needs funder.
func Apply(ctx context.Context, pool *amm.Pool, funder Funder, op model.Operation) (model.OperationResult, error) {
	result := model.OperationResult{Op: op.Op, Account: op.Account}

	account, err := amm.ParseAddress(op.Account)
	if err != nil {
		return result, fmt.Errorf("account: %w", err)
	}
	if op.Timestamp != 0 {
		ctx = dex.WithEventTime(ctx, time.Unix(int64(op.Timestamp), 0).UTC())
	}

	switch op.Op {
	case model.OpFund:
		if funder == nil {
			return result, fmt.Errorf("ledger does not support funding")
		}
		asset, err := ResolveAsset(pool, op.Asset)
		if err != nil {
			return result, err
		}
		amount, err := amm.ParseAmount(op.Amount)
		if err != nil {
			return result, fmt.Errorf("amount: %w", err)
		}
		if err := funder.Credit(ctx, asset, account, amount); err != nil {
			return result, err
		}
		result.Amount = amm.FormatAmount(amount)

	case model.OpAdd:
		amountA, err := amm.ParseAmount(op.AmountA)
		if err != nil {
			return result, fmt.Errorf("amount_a: %w", err)
		}
		amountB, err := amm.ParseAmount(op.AmountB)
		if err != nil {
			return result, fmt.Errorf("amount_b: %w", err)
		}
		shares, err := pool.AddLiquidity(ctx, account, amountA, amountB)
		if err != nil {
			return result, err
		}
		result.AmountA = amm.FormatAmount(amountA)
		result.AmountB = amm.FormatAmount(amountB)
		result.Shares = amm.FormatAmount(shares)

	case model.OpRemove:
		shares, err := amm.ParseAmount(op.Shares)
		if err != nil {
			return result, fmt.Errorf("shares: %w", err)
		}
		amountA, amountB, err := pool.RemoveLiquidity(ctx, account, shares)
		if err != nil {
			return result, err
		}
		result.AmountA = amm.FormatAmount(amountA)
		result.AmountB = amm.FormatAmount(amountB)
		result.Shares = amm.FormatAmount(shares)

	case model.OpSwapAForB, model.OpSwapBForA:
		amountIn, err := amm.ParseAmount(op.Amount)
		if err != nil {
			return result, fmt.Errorf("amount: %w", err)
		}
		var amountOut *uint256.Int
		if op.Op == model.OpSwapAForB {
			amountOut, err = pool.SwapAForB(ctx, account, amountIn)
		} else {
			amountOut, err = pool.SwapBForA(ctx, account, amountIn)
		}
		if err != nil {
			return result, err
		}
		result.Amount = amm.FormatAmount(amountIn)
		result.AmountOut = amm.FormatAmount(amountOut)

	default:
		return result, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Op)
	}

	result.Nonce = pool.Nonce()
	return result, nil
}

// ResolveAsset maps "a", "b" or a hex address to one of the pool's assets.
func ResolveAsset(pool *amm.Pool, input string) (common.Address, error) {
	assetA, assetB := pool.Assets()
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "a":
		return assetA, nil
	case "b":
		return assetB, nil
	}
	asset, err := amm.ParseAddress(input)
	if err != nil {
		return common.Address{}, fmt.Errorf("asset: %w", err)
	}
	if asset != assetA && asset != assetB {
		return common.Address{}, fmt.Errorf("%w: %s is not traded by pool %s", amm.ErrInvalidAddress, asset.Hex(), pool.Address().Hex())
	}
	return asset, nil
}
