package amm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ParseAmount parses a non-negative base-10 integer that fits in 256 bits.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	parsed, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidAmount, input)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, input)
	}
	value, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", ErrArithmeticOverflow, input)
	}
	return value, nil
}

// FormatAmount renders an amount as a base-10 string; nil renders as "0".
func FormatAmount(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.ToBig().String()
}

// ParseAddress parses a hex account or asset id; the zero address is rejected.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}
	address := common.HexToAddress(input)
	if address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return address, nil
}
