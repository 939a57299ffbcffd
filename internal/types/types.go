// Package types holds the data model shared across the aggregator: tokens,
// pool metadata, pricing routes, the persisted pool registry, and the
// in-memory alive-pool / cache value types.
package types

import (
	"strings"
	"time"
)

// DexType identifies the AMM variant a pool implements.
type DexType string

const (
	DexV2 DexType = "v2"
	DexV3 DexType = "v3"
)

// Tier is the refresh-rate class assigned to a pool based on recent volatility.
type Tier string

const (
	TierHigh   Tier = "high"
	TierNormal Tier = "normal"
	TierLow    Tier = "low"
)

// TierInterval returns the refresh cadence for a tier.
func TierInterval(t Tier) time.Duration {
	switch t {
	case TierHigh:
		return 5 * time.Second
	case TierLow:
		return 30 * time.Second
	default:
		return 10 * time.Second
	}
}

// Demote returns the tier one step closer to low. It never skips a step.
func (t Tier) Demote() Tier {
	switch t {
	case TierHigh:
		return TierNormal
	case TierNormal:
		return TierLow
	default:
		return TierLow
	}
}

// Token is a catalog entry for an ERC20 (or native-wrapped) asset on a chain.
// Identity is (ChainID, lowercase(Address)).
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	ChainID  int    `json:"chainId"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// Lower returns the canonical lowercase form of the token address.
func (t Token) Lower() string { return strings.ToLower(t.Address) }

// PoolMetadata describes a liquidity pool tracked by the registry.
type PoolMetadata struct {
	Address string  `json:"address"`
	DexType DexType `json:"dexType"`
	Token0  string  `json:"token0"`
	Token1  string  `json:"token1"`
	FeeTier *uint32 `json:"feeTier,omitempty"`
	Weight  int     `json:"weight"`
}

// Lower returns the canonical lowercase form of the pool address.
func (p PoolMetadata) Lower() string { return strings.ToLower(p.Address) }

// WeightFor returns the multicall weight for a dex type: 1 for v2, 2 for v3.
func WeightFor(d DexType) int {
	if d == DexV3 {
		return 2
	}
	return 1
}

// PricingRoute states that a token's price can be derived from Pool by
// normalizing against Base.
type PricingRoute struct {
	Pool string `json:"pool"`
	Base string `json:"base"`
}

// PoolRegistry is the persisted per-chain routing index.
//
// Invariants:
//   - every PricingRoute.Pool is a key of Pools
//   - for every pool P=(t0,t1), both t0 and t1 have at least one route in
//     PricingRoutes whose Pool==P and Base is the other token
//   - no duplicate (pool, base) edge in a token's route list
type PoolRegistry struct {
	Pools         map[string]PoolMetadata   `json:"pools"`
	PricingRoutes map[string][]PricingRoute `json:"pricingRoutes"`
}

// NewPoolRegistry returns an empty, ready-to-use registry.
func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{
		Pools:         make(map[string]PoolMetadata),
		PricingRoutes: make(map[string][]PricingRoute),
	}
}

// AddPool inserts pool metadata and the two symmetric pricing routes it
// implies. It is idempotent: re-adding the same pool/route is a no-op.
func (r *PoolRegistry) AddPool(pool PoolMetadata) {
	poolLower := pool.Lower()
	r.Pools[poolLower] = pool

	t0 := strings.ToLower(pool.Token0)
	t1 := strings.ToLower(pool.Token1)
	r.addRoute(t0, PricingRoute{Pool: poolLower, Base: t1})
	r.addRoute(t1, PricingRoute{Pool: poolLower, Base: t0})
}

func (r *PoolRegistry) addRoute(tokenLower string, route PricingRoute) {
	for _, existing := range r.PricingRoutes[tokenLower] {
		if existing.Pool == route.Pool && existing.Base == route.Base {
			return
		}
	}
	r.PricingRoutes[tokenLower] = append(r.PricingRoutes[tokenLower], route)
}

// BestRoute picks the route with the highest pool weight for tokenLower,
// breaking ties by lowest pool address. Returns false if no route exists.
func (r *PoolRegistry) BestRoute(tokenLower string) (PricingRoute, PoolMetadata, bool) {
	routes := r.PricingRoutes[tokenLower]
	var best PricingRoute
	var bestPool PoolMetadata
	found := false
	for _, route := range routes {
		pool, ok := r.Pools[route.Pool]
		if !ok {
			continue
		}
		if !found ||
			pool.Weight > bestPool.Weight ||
			(pool.Weight == bestPool.Weight && pool.Lower() < bestPool.Lower()) {
			best = route
			bestPool = pool
			found = true
		}
	}
	return best, bestPool, found
}

// AlivePool is the in-memory tracked state for a pool under active refresh.
type AlivePool struct {
	Address         string
	ChainID         int
	Tier            Tier
	NextRefresh     time.Time
	LastBlockSeen   uint64
	LastPrice       float64
	RequestCount    int
	LastRequestTime time.Time
}

// PoolStateSample is a cached on-chain observation of a pool's state.
// SqrtPriceX96/Liquidity are populated for V3 pools, Reserve0/Reserve1 for
// V2 pools; all are decimal string forms of a uint256.
type PoolStateSample struct {
	PoolAddress  string
	SqrtPriceX96 string
	Liquidity    string
	Reserve0     string
	Reserve1     string
	BlockNumber  uint64
	ObservedAt   time.Time
}

// SnapshotEntry is one token's row within a ChainSnapshot.
type SnapshotEntry struct {
	Token         Token   `json:"token"`
	PriceUSD      float64 `json:"priceUSD"`
	LiquidityUSD  float64 `json:"liquidityUSD"`
	VolumeUSD     float64 `json:"volumeUSD"`
	MarketCapUSD  float64 `json:"marketCapUSD"`
	observedAt    time.Time
}

// ObservedAt reports when this entry's underlying sample was taken.
func (e SnapshotEntry) ObservedAt() time.Time { return e.observedAt }

// WithObservedAt returns a copy of e stamped with the given observation time.
func (e SnapshotEntry) WithObservedAt(t time.Time) SnapshotEntry {
	e.observedAt = t
	return e
}

// ChainSnapshot is the paginated response body for one chain.
type ChainSnapshot struct {
	Timestamp int64           `json:"timestamp"`
	Chain     string          `json:"chain"`
	Entries   []SnapshotEntry `json:"entries"`
}
