package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"ammPool/internal/amm"
	"ammPool/internal/model"
)

// Encoder turns pool events into event logs laid out by PoolABI.
type Encoder struct {
	poolABI abi.ABI
}

func NewEncoder() (*Encoder, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, err
	}
	return &Encoder{poolABI: poolABI}, nil
}

// Encode builds the log record emitted by pool for event.
func (e *Encoder) Encode(pool common.Address, nonce, timestamp uint64, event amm.Event) (model.LogRecord, error) {
	var (
		indexed []common.Hash
		values  []interface{}
	)
	switch ev := event.(type) {
	case amm.LiquidityAdded:
		indexed = []common.Hash{addressTopic(ev.Provider)}
		values = bigValues(ev.AmountA, ev.AmountB, ev.SharesMinted)
	case amm.LiquidityRemoved:
		indexed = []common.Hash{addressTopic(ev.Provider)}
		values = bigValues(ev.AmountA, ev.AmountB, ev.SharesBurned)
	case amm.Swap:
		indexed = []common.Hash{addressTopic(ev.Trader), addressTopic(ev.AssetIn), addressTopic(ev.AssetOut)}
		values = bigValues(ev.AmountIn, ev.AmountOut)
	default:
		return model.LogRecord{}, fmt.Errorf("unsupported event %T", event)
	}

	abiEvent, ok := e.poolABI.Events[event.EventName()]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("event %s missing from abi", event.EventName())
	}
	data, err := abiEvent.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", abiEvent.Name, err)
	}

	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, abiEvent.ID.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		Nonce:     nonce,
		Address:   pool.Hex(),
		Topics:    topics,
		Data:      hexutil.Encode(data),
		Timestamp: timestamp,
	}, nil
}

func addressTopic(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}

func bigValues(amounts ...*uint256.Int) []interface{} {
	values := make([]interface{}, 0, len(amounts))
	for _, amount := range amounts {
		if amount == nil {
			amount = new(uint256.Int)
		}
		values = append(values, amount.ToBig())
	}
	return values
}
