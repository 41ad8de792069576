package model

// Pool is the registry record of a pool.
type Pool struct {
	Address        string `json:"address"`
	AssetA         string `json:"asset_a"`
	AssetB         string `json:"asset_b"`
	FeeNumerator   uint32 `json:"fee_numerator"`
	FeeDenominator uint32 `json:"fee_denominator"`
	FirstSeenNonce uint64 `json:"first_seen_nonce"`
}
