package amm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MintShares returns the shares a deposit of (amountA, amountB) earns.
//
// The first deposit mints sqrt(amountA*amountB), independent of the chosen
// price. Later deposits mint the smaller of the two proportional
// contributions; the surplus on the other side is kept by the pool.
func MintShares(amountA, amountB, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, error) {
	if isZero(amountA) || isZero(amountB) {
		return nil, fmt.Errorf("%w: both amounts must be positive", ErrInvalidAmount)
	}

	var minted *uint256.Int
	if isZero(totalShares) {
		product, err := mul(amountA, amountB)
		if err != nil {
			return nil, err
		}
		minted = Sqrt(product)
	} else {
		if isZero(reserveA) || isZero(reserveB) {
			return nil, fmt.Errorf("%w: shares outstanding with empty reserves", ErrInvalidState)
		}
		fromA, err := mulDiv(amountA, totalShares, reserveA)
		if err != nil {
			return nil, err
		}
		fromB, err := mulDiv(amountB, totalShares, reserveB)
		if err != nil {
			return nil, err
		}
		minted = minInt(fromA, fromB)
	}

	if minted.IsZero() {
		return nil, fmt.Errorf("%w: deposit %s/%s too small",
			ErrInsufficientSharesMinted, FormatAmount(amountA), FormatAmount(amountB))
	}
	return minted, nil
}

// RedeemAmounts returns the reserves a burn of shares pays out.
func RedeemAmounts(shares, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if isZero(shares) {
		return nil, nil, fmt.Errorf("%w: shares must be positive", ErrInvalidAmount)
	}
	if isZero(totalShares) {
		return nil, nil, fmt.Errorf("%w: no shares outstanding", ErrInsufficientLiquidity)
	}
	if shares.Gt(totalShares) {
		return nil, nil, fmt.Errorf("%w: %s exceeds total %s",
			ErrInsufficientShareBalance, FormatAmount(shares), FormatAmount(totalShares))
	}

	amountA, err := mulDiv(shares, reserveA, totalShares)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := mulDiv(shares, reserveB, totalShares)
	if err != nil {
		return nil, nil, err
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, fmt.Errorf("%w: burn of %s yields %s/%s",
			ErrInsufficientSharesBurned, FormatAmount(shares), FormatAmount(amountA), FormatAmount(amountB))
	}
	return amountA, amountB, nil
}
