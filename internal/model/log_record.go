package model

// LogRecord is one pool event encoded as an event log, as written to the
// event JSONL file.
type LogRecord struct {
	Nonce      uint64   `json:"nonce"`
	Address    string   `json:"address"`
	Topics     []string `json:"topics"`
	Data       string   `json:"data"`
	Timestamp  uint64   `json:"timestamp"`
	IngestedAt string   `json:"ingested_at"`
}

// Topic0 returns the event signature topic, or "" when there is none.
func (lr LogRecord) Topic0() string {
	if len(lr.Topics) == 0 {
		return ""
	}
	return lr.Topics[0]
}
