package model

// TypedEvent is a decoded pool event enriched with the pool's asset pair.
type TypedEvent struct {
	Nonce     uint64      `json:"nonce"`
	Address   string      `json:"address"`
	EventName string      `json:"event_name"`
	Timestamp uint64      `json:"timestamp"`
	Decoded   interface{} `json:"decoded"`
	PoolMeta  PoolMeta    `json:"pool_meta"`
	Raw       *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
