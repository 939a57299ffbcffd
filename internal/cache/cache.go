// Package cache holds the shared, block-aware view of pool state that the
// scheduler writes and the snapshot service reads. It is a real bounded LRU,
// not an unbounded map dressed up as one.
package cache

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// DefaultCapacity bounds the number of tracked pool samples. At steady
// state the number of pools the scheduler refreshes is orders of magnitude
// smaller than this; the bound exists to cap memory if discovery runs away.
const DefaultCapacity = 100_000

// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	inner *lru.Cache[string, types.PoolStateSample]
}

// New returns a Cache bounded at capacity entries. capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	inner, err := lru.New[string, types.PoolStateSample](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: new lru: %w", err)
	}
	return &Cache{inner: inner}, nil
}

func key(chainID int, poolAddress string) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(poolAddress))
}

// Get returns the cached sample for (chainID, poolAddress), if present.
func (c *Cache) Get(chainID int, poolAddress string) (types.PoolStateSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Get(key(chainID, poolAddress))
}

// Put records sample for (chainID, poolAddress), overwriting any prior
// value. Callers are responsible for the block-number freshness check;
// Put itself always writes.
func (c *Cache) Put(chainID int, poolAddress string, sample types.PoolStateSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key(chainID, poolAddress), sample)
}

// BlockNumber returns the last-seen block number for (chainID, poolAddress),
// or 0 if nothing has ever been cached for that pool.
func (c *Cache) BlockNumber(chainID int, poolAddress string) uint64 {
	sample, ok := c.Get(chainID, poolAddress)
	if !ok {
		return 0
	}
	return sample.BlockNumber
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Len()
}
