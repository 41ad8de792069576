package model

// PoolState is the persisted form of a pool snapshot. Amounts are base-10
// strings so values above 2^64 survive JSON and NUMERIC columns.
type PoolState struct {
	Address     string            `json:"address"`
	AssetA      string            `json:"asset_a"`
	AssetB      string            `json:"asset_b"`
	ReserveA    string            `json:"reserve_a"`
	ReserveB    string            `json:"reserve_b"`
	TotalShares string            `json:"total_shares"`
	Shares      map[string]string `json:"shares"`
	Nonce       uint64            `json:"nonce"`
	Balances    []LedgerBalance   `json:"balances,omitempty"`
	UpdatedAt   string            `json:"updated_at"`
}

// LedgerBalance is one (asset, account) holding of an in-process ledger.
type LedgerBalance struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}
