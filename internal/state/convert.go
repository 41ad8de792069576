package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammPool/internal/amm"
	"ammPool/internal/ledger"
	"ammPool/internal/model"
)

// FromSnapshot renders a pool snapshot, plus optional in-process ledger
// balances, in its persisted form.
func FromSnapshot(snap amm.Snapshot, balances []ledger.Balance) model.PoolState {
	shares := make(map[string]string, len(snap.Shares))
	for owner, balance := range snap.Shares {
		if balance == nil || balance.IsZero() {
			continue
		}
		shares[owner.Hex()] = amm.FormatAmount(balance)
	}

	st := model.PoolState{
		Address:     amm.PoolAddress(snap.AssetA, snap.AssetB).Hex(),
		AssetA:      snap.AssetA.Hex(),
		AssetB:      snap.AssetB.Hex(),
		ReserveA:    amm.FormatAmount(snap.ReserveA),
		ReserveB:    amm.FormatAmount(snap.ReserveB),
		TotalShares: amm.FormatAmount(snap.TotalShares),
		Shares:      shares,
		Nonce:       snap.Nonce,
	}
	for _, b := range balances {
		st.Balances = append(st.Balances, model.LedgerBalance{
			Asset:   b.Asset.Hex(),
			Account: b.Account.Hex(),
			Amount:  amm.FormatAmount(b.Amount),
		})
	}
	return st
}

// ToSnapshot parses a persisted state back into a validated pool snapshot
// and its ledger balances.
func ToSnapshot(st model.PoolState) (amm.Snapshot, []ledger.Balance, error) {
	assetA, err := amm.ParseAddress(st.AssetA)
	if err != nil {
		return amm.Snapshot{}, nil, fmt.Errorf("asset a: %w", err)
	}
	assetB, err := amm.ParseAddress(st.AssetB)
	if err != nil {
		return amm.Snapshot{}, nil, fmt.Errorf("asset b: %w", err)
	}
	if st.Address != "" {
		want := amm.PoolAddress(assetA, assetB)
		if !common.IsHexAddress(st.Address) || common.HexToAddress(st.Address) != want {
			return amm.Snapshot{}, nil, fmt.Errorf("%w: address %s does not match assets (want %s)", amm.ErrInvalidState, st.Address, want.Hex())
		}
	}

	snap := amm.Snapshot{
		AssetA: assetA,
		AssetB: assetB,
		Shares: make(map[common.Address]*uint256.Int, len(st.Shares)),
		Nonce:  st.Nonce,
	}
	if snap.ReserveA, err = parseStored(st.ReserveA, "reserve a"); err != nil {
		return amm.Snapshot{}, nil, err
	}
	if snap.ReserveB, err = parseStored(st.ReserveB, "reserve b"); err != nil {
		return amm.Snapshot{}, nil, err
	}
	if snap.TotalShares, err = parseStored(st.TotalShares, "total shares"); err != nil {
		return amm.Snapshot{}, nil, err
	}
	for owner, balance := range st.Shares {
		account, err := amm.ParseAddress(owner)
		if err != nil {
			return amm.Snapshot{}, nil, fmt.Errorf("share owner: %w", err)
		}
		amount, err := parseStored(balance, "shares of "+owner)
		if err != nil {
			return amm.Snapshot{}, nil, err
		}
		snap.Shares[account] = amount
	}
	if err := snap.Validate(); err != nil {
		return amm.Snapshot{}, nil, err
	}

	balances := make([]ledger.Balance, 0, len(st.Balances))
	for _, b := range st.Balances {
		asset, err := amm.ParseAddress(b.Asset)
		if err != nil {
			return amm.Snapshot{}, nil, fmt.Errorf("balance asset: %w", err)
		}
		if !common.IsHexAddress(b.Account) {
			return amm.Snapshot{}, nil, fmt.Errorf("invalid balance account: %s", b.Account)
		}
		amount, err := parseStored(b.Amount, "balance")
		if err != nil {
			return amm.Snapshot{}, nil, err
		}
		balances = append(balances, ledger.Balance{Asset: asset, Account: common.HexToAddress(b.Account), Amount: amount})
	}
	return snap, balances, nil
}

func parseStored(value, field string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	amount, err := amm.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return amount, nil
}
