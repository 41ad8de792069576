package amm

import "errors"

var (
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrInvalidAddress               = errors.New("invalid address")
	ErrIdenticalAssets              = errors.New("identical assets")
	ErrInsufficientLiquidity        = errors.New("insufficient liquidity")
	ErrInsufficientLiquidityForSwap = errors.New("insufficient liquidity for swap")
	ErrInsufficientOutputAmount     = errors.New("insufficient output amount")
	ErrInsufficientSharesMinted     = errors.New("insufficient shares minted")
	ErrInsufficientSharesBurned     = errors.New("insufficient shares burned")
	ErrInsufficientShareBalance     = errors.New("insufficient share balance")
	ErrNoLiquidity                  = errors.New("no liquidity")
	ErrArithmeticOverflow           = errors.New("arithmetic overflow")
	ErrTransferFailed               = errors.New("transfer failed")
	ErrReentrantCall                = errors.New("reentrant call")
	ErrInvalidState                 = errors.New("invalid pool state")
)
