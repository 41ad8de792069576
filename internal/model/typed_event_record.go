package model

import "encoding/json"

// TypedEventRecord is the JSON representation used for aggregation.
type TypedEventRecord struct {
	Nonce     uint64          `json:"nonce"`
	Address   string          `json:"address"`
	EventName string          `json:"event_name"`
	Timestamp uint64          `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
	PoolMeta  PoolMeta        `json:"pool_meta"`
	Raw       *RawLogRef      `json:"raw,omitempty"`
}
