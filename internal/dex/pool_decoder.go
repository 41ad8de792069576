package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/model"
)

// PoolDecoder decodes constant-product pool events.
type PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewPoolDecoder builds a pool event decoder.
func NewPoolDecoder() (*PoolDecoder, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(poolABI.Events))
	for _, name := range []string{amm.EventLiquidityAdded, amm.EventLiquidityRemoved, amm.EventSwap} {
		topicToName[strings.ToLower(poolABI.Events[name].ID.Hex())] = name
	}

	return &PoolDecoder{
		poolABI:     poolABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}
	pool := common.HexToAddress(log.Address)

	var decoded interface{}
	var err error
	switch name {
	case amm.EventLiquidityAdded:
		decoded, err = d.decodeLiquidityAdded(log)
	case amm.EventLiquidityRemoved:
		decoded, err = d.decodeLiquidityRemoved(log)
	case amm.EventSwap:
		decoded, err = d.decodeSwap(log)
	default:
		err = fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}

	meta := poolMeta(ctx, pool, decoded)
	return buildTypedEvent(log, name, decoded, meta), nil
}

func poolMeta(ctx DecodeContext, pool common.Address, decoded interface{}) model.PoolMeta {
	if ctx.PoolMetaCache != nil {
		if meta, ok := ctx.PoolMetaCache.Get(pool); ok {
			return meta
		}
	}

	swap, ok := decoded.(model.SwapEventData)
	if !ok {
		if ctx.Logger != nil {
			ctx.Logger.Debug("pool assets unknown", zap.String("pool", pool.Hex()))
		}
		return model.PoolMeta{}
	}
	meta, ok := metaFromSwap(pool, common.HexToAddress(swap.AssetIn), common.HexToAddress(swap.AssetOut))
	if !ok {
		if ctx.Logger != nil {
			ctx.Logger.Warn("swap assets do not derive pool address", zap.String("pool", pool.Hex()))
		}
		return model.PoolMeta{}
	}
	if ctx.PoolMetaCache != nil {
		ctx.PoolMetaCache.Set(pool, meta)
	}
	return meta
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		Nonce:     log.Nonce,
		Address:   log.Address,
		EventName: name,
		Timestamp: log.Timestamp,
		Decoded:   decoded,
		PoolMeta:  meta,
		Raw:       raw,
	}
}

func (d *PoolDecoder) decodeLiquidityAdded(log model.LogRecord) (model.LiquidityAddedData, error) {
	provider, amounts, err := d.decodeLiquidity(amm.EventLiquidityAdded, log)
	if err != nil {
		return model.LiquidityAddedData{}, err
	}
	return model.LiquidityAddedData{
		Provider:     provider.Hex(),
		AmountA:      amounts[0],
		AmountB:      amounts[1],
		SharesMinted: amounts[2],
	}, nil
}

func (d *PoolDecoder) decodeLiquidityRemoved(log model.LogRecord) (model.LiquidityRemovedData, error) {
	provider, amounts, err := d.decodeLiquidity(amm.EventLiquidityRemoved, log)
	if err != nil {
		return model.LiquidityRemovedData{}, err
	}
	return model.LiquidityRemovedData{
		Provider:     provider.Hex(),
		AmountA:      amounts[0],
		AmountB:      amounts[1],
		SharesBurned: amounts[2],
	}, nil
}

// decodeLiquidity handles both liquidity events, which share a layout.
func (d *PoolDecoder) decodeLiquidity(name string, log model.LogRecord) (common.Address, []string, error) {
	event := d.poolABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return common.Address{}, nil, err
	}

	var indexed struct {
		Provider common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return common.Address{}, nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return common.Address{}, nil, err
	}
	if len(values) != 3 {
		return common.Address{}, nil, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}
	amounts, err := bigStrings(values)
	if err != nil {
		return common.Address{}, nil, err
	}
	return indexed.Provider, amounts, nil
}

func (d *PoolDecoder) decodeSwap(log model.LogRecord) (model.SwapEventData, error) {
	event := d.poolABI.Events[amm.EventSwap]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.SwapEventData{}, err
	}

	var indexed struct {
		Trader   common.Address
		AssetIn  common.Address
		AssetOut common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.SwapEventData{}, err
	}
	if len(values) != 2 {
		return model.SwapEventData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}
	amounts, err := bigStrings(values)
	if err != nil {
		return model.SwapEventData{}, err
	}

	return model.SwapEventData{
		Trader:    indexed.Trader.Hex(),
		AssetIn:   indexed.AssetIn.Hex(),
		AssetOut:  indexed.AssetOut.Hex(),
		AmountIn:  amounts[0],
		AmountOut: amounts[1],
	}, nil
}

func bigStrings(values []interface{}) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, value := range values {
		amount, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out = append(out, amount.String())
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
