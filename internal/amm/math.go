package amm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Swap fee: 0.3%, applied to the input side.
const (
	FeeNumerator   = 997
	FeeDenominator = 1000
)

var (
	feeNumerator   = uint256.NewInt(FeeNumerator)
	feeDenominator = uint256.NewInt(FeeDenominator)

	// PricePrecision scales Price to an 18-decimal fixed-point value.
	PricePrecision = uint256.NewInt(1_000_000_000_000_000_000)
)

// QuoteOutput returns how much of the output asset a trade of amountIn
// yields against the given reserves:
//
//	amountOut = amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)
//
// It does not touch any pool state. A zero result is not an error here;
// swaps reject it separately.
func QuoteOutput(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if isZero(amountIn) {
		return nil, fmt.Errorf("%w: amount in must be positive", ErrInvalidAmount)
	}
	if isZero(reserveIn) || isZero(reserveOut) {
		return nil, fmt.Errorf("%w: reserves must be positive", ErrInsufficientLiquidity)
	}

	amountInWithFee, err := mul(amountIn, feeNumerator)
	if err != nil {
		return nil, err
	}
	numerator, err := mul(amountInWithFee, reserveOut)
	if err != nil {
		return nil, err
	}
	denominator, err := mul(reserveIn, feeDenominator)
	if err != nil {
		return nil, err
	}
	denominator, err = add(denominator, amountInWithFee)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(numerator, denominator), nil
}

// Sqrt returns floor(sqrt(x)) using Babylonian iteration.
func Sqrt(x *uint256.Int) *uint256.Int {
	if isZero(x) {
		return new(uint256.Int)
	}

	// (x+1)/2 without the x+1 overflow at the top of the range.
	z := new(uint256.Int).Rsh(x, 1)
	if x[0]&1 == 1 {
		z.AddUint64(z, 1)
	}
	y := new(uint256.Int).Set(x)

	tmp := new(uint256.Int)
	for z.Lt(y) {
		y.Set(z)
		tmp.Div(x, z)
		z.Add(tmp, z)
		z.Rsh(z, 1)
	}
	return y
}

// mulDiv returns floor(x*y/d). The product must fit in 256 bits.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if isZero(d) {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidState)
	}
	product, err := mul(x, y)
	if err != nil {
		return nil, err
	}
	return product.Div(product, d), nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, FormatAmount(x), FormatAmount(y))
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, FormatAmount(x), FormatAmount(y))
	}
	return z, nil
}

func sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, FormatAmount(x), FormatAmount(y))
	}
	return z, nil
}

func minInt(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}

func isZero(x *uint256.Int) bool {
	return x == nil || x.IsZero()
}

func clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}
