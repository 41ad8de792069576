package model

// PoolMeta is the asset pair of a pool, attached to decoded events.
type PoolMeta struct {
	AssetA string `json:"asset_a"`
	AssetB string `json:"asset_b"`
}

// Complete reports whether both assets are known.
func (m PoolMeta) Complete() bool {
	return m.AssetA != "" && m.AssetB != ""
}
