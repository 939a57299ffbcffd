// Package poolcontroller holds the in-memory "alive set" of pools under
// active observation: their tier, next-refresh time, and the volatility
// bookkeeping that drives tier transitions.
package poolcontroller

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nemonetwork/dex-aggregator/internal/types"
)

const epsilon = 1e-9

// Controller is safe for concurrent use.
type Controller struct {
	mu    sync.Mutex
	pools map[string]*types.AlivePool
}

// New returns an empty Controller.
func New() *Controller {
	return &Controller{pools: make(map[string]*types.AlivePool)}
}

func key(chainID int, poolAddress string) string {
	return strings.ToLower(poolAddress) + "@" + strconv.Itoa(chainID)
}

// Track idempotently registers poolAddress under chainID. A pool already
// tracked is left untouched.
func (c *Controller) Track(chainID int, pool types.PoolMetadata) *types.AlivePool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(chainID, pool.Address)
	if existing, ok := c.pools[k]; ok {
		return existing
	}

	alive := &types.AlivePool{
		Address:     strings.ToLower(pool.Address),
		ChainID:     chainID,
		Tier:        types.TierNormal,
		NextRefresh: time.Now().Add(types.TierInterval(types.TierNormal)),
	}
	c.pools[k] = alive
	return alive
}

// GetPoolsForRefresh returns every alive pool on chainID whose NextRefresh
// has passed.
func (c *Controller) GetPoolsForRefresh(chainID int) []*types.AlivePool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var due []*types.AlivePool
	for _, p := range c.pools {
		if p.ChainID == chainID && !now.Before(p.NextRefresh) {
			due = append(due, p)
		}
	}
	return due
}

// Get returns the tracked AlivePool for (chainID, poolAddress), if any.
func (c *Controller) Get(chainID int, poolAddress string) (*types.AlivePool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[key(chainID, poolAddress)]
	return p, ok
}

// SetNextRefresh overrides the next-refresh time for a pool directly, used
// by the scheduler for the fast-retry and block-aware-skip paths which do
// not go through a tier transition.
func (c *Controller) SetNextRefresh(chainID int, poolAddress string, next time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pools[key(chainID, poolAddress)]; ok {
		p.NextRefresh = next
	}
}

// RecordObservation applies the volatility-driven tier transition for a
// newly observed price and records blockNumber/newPrice as the pool's
// latest observation, advancing NextRefresh accordingly. This is the only
// path that sets a tracked AlivePool's Tier, LastBlockSeen and LastPrice
// after Track (SetNextRefresh touches NextRefresh alone), so every field
// stays consistent under the controller's single mutex.
func (c *Controller) RecordObservation(chainID int, poolAddress string, blockNumber uint64, newPrice float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[key(chainID, poolAddress)]
	if !ok {
		return
	}

	denom := p.LastPrice
	if denom < epsilon {
		denom = epsilon
	}
	delta := newPrice - p.LastPrice
	if delta < 0 {
		delta = -delta
	}
	delta /= denom

	switch {
	case delta >= 0.005:
		p.Tier = types.TierHigh
	case delta >= 0.001:
		p.Tier = types.TierNormal
	default:
		p.Tier = p.Tier.Demote()
	}
	p.NextRefresh = time.Now().Add(types.TierInterval(p.Tier))
	p.LastBlockSeen = blockNumber
	p.LastPrice = newPrice
}

// Len reports the number of tracked pools, for tests and metrics.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pools)
}
