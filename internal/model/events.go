package model

// LiquidityAddedData is the decoded LiquidityAdded event payload.
type LiquidityAddedData struct {
	Provider     string `json:"provider"`
	AmountA      string `json:"amount_a"`
	AmountB      string `json:"amount_b"`
	SharesMinted string `json:"shares_minted"`
}

// LiquidityRemovedData is the decoded LiquidityRemoved event payload.
type LiquidityRemovedData struct {
	Provider     string `json:"provider"`
	AmountA      string `json:"amount_a"`
	AmountB      string `json:"amount_b"`
	SharesBurned string `json:"shares_burned"`
}

// SwapEventData is the decoded Swap event payload.
type SwapEventData struct {
	Trader    string `json:"trader"`
	AssetIn   string `json:"asset_in"`
	AssetOut  string `json:"asset_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}
