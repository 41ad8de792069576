package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger moves asset balances between a counterparty and the pool's custody
// account. A returned error means nothing moved.
//
// Calls run while the pool holds its operation lock. An implementation that
// calls back into the pool must pass on the ctx it received: the pool then
// rejects the call with ErrReentrantCall. A call made with any other context
// waits for the lock and never returns.
type Ledger interface {
	// TransferFrom pulls amount of asset from payer into the pool.
	TransferFrom(ctx context.Context, asset, payer common.Address, amount *uint256.Int) error
	// Transfer pushes amount of asset from the pool to payee.
	Transfer(ctx context.Context, asset, payee common.Address, amount *uint256.Int) error
}
