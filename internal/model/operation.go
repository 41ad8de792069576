package model

// Operation kinds accepted by replay scripts.
const (
	OpFund      = "fund"
	OpAdd       = "add"
	OpRemove    = "remove"
	OpSwapAForB = "swap_a_for_b"
	OpSwapBForA = "swap_b_for_a"
)

// Operation is one line of a replay script.
type Operation struct {
	Op      string `json:"op"`
	Account string `json:"account"`
	// Asset and Amount apply to fund; Amount is the input of a swap.
	Asset   string `json:"asset,omitempty"`
	Amount  string `json:"amount,omitempty"`
	AmountA string `json:"amount_a,omitempty"`
	AmountB string `json:"amount_b,omitempty"`
	Shares  string `json:"shares,omitempty"`
	// Timestamp optionally pins the event time of the operation.
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// OperationResult records the outcome of one applied operation.
type OperationResult struct {
	Line      uint64 `json:"line"`
	Op        string `json:"op"`
	Account   string `json:"account"`
	Nonce     uint64 `json:"nonce"`
	Amount    string `json:"amount,omitempty"`
	AmountA   string `json:"amount_a,omitempty"`
	AmountB   string `json:"amount_b,omitempty"`
	Shares    string `json:"shares,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`
	Error     string `json:"error,omitempty"`
}
