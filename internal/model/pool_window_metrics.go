package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window.
type PoolWindowMetrics struct {
	PoolAddress    string    `json:"pool_address"`
	WindowSizeSecs int64     `json:"window_size_seconds"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	SwapCount      uint64    `json:"swap_count"`
	VolumeA        string    `json:"volume_a"`
	VolumeB        string    `json:"volume_b"`
	FeeA           string    `json:"fee_a"`
	FeeB           string    `json:"fee_b"`
	AddCount       uint64    `json:"add_count"`
	RemoveCount    uint64    `json:"remove_count"`
	SharesMinted   string    `json:"shares_minted"`
	SharesBurned   string    `json:"shares_burned"`
	NetFlowA       string    `json:"net_flow_a"`
	NetFlowB       string    `json:"net_flow_b"`
	FirstNonce     uint64    `json:"first_nonce"`
	LastNonce      uint64    `json:"last_nonce"`
	FeeMethod      string    `json:"fee_method"`
}
