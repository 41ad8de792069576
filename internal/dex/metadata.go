package dex

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/amm"
	"ammPool/internal/model"
)

// PoolMetaCache caches pool asset pairs by pool address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Register records the pool trading assetA/assetB under its derived address.
func (c *PoolMetaCache) Register(assetA, assetB common.Address) common.Address {
	pool := amm.PoolAddress(assetA, assetB)
	c.Set(pool, model.PoolMeta{AssetA: assetA.Hex(), AssetB: assetB.Hex()})
	return pool
}

// metaFromSwap recovers the ordered asset pair of pool from the two assets
// a swap touched.
func metaFromSwap(pool, assetIn, assetOut common.Address) (model.PoolMeta, bool) {
	switch pool {
	case amm.PoolAddress(assetIn, assetOut):
		return model.PoolMeta{AssetA: assetIn.Hex(), AssetB: assetOut.Hex()}, true
	case amm.PoolAddress(assetOut, assetIn):
		return model.PoolMeta{AssetA: assetOut.Hex(), AssetB: assetIn.Hex()}, true
	default:
		return model.PoolMeta{}, false
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
