// Package snapshot assembles paginated ChainSnapshot responses by joining
// the merged token list, pool registry, and shared state cache, falling
// back to a synthetic entry and scheduling discovery when a token has no
// known pricing route yet.
package snapshot

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/cache"
	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/discovery"
	"github.com/nemonetwork/dex-aggregator/internal/metrics"
	"github.com/nemonetwork/dex-aggregator/internal/poolcontroller"
	"github.com/nemonetwork/dex-aggregator/internal/pricing"
	"github.com/nemonetwork/dex-aggregator/internal/storage"
	"github.com/nemonetwork/dex-aggregator/internal/tokenlist"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// ErrChainNotSupported is returned for a chain with no registered adapter.
var ErrChainNotSupported = errors.New("snapshot: chain not supported")

// CacheTTL bounds how long a cached SnapshotEntry is considered fresh.
const CacheTTL = 10 * time.Second

const (
	syntheticPriceUSD     = 1
	syntheticLiquidityUSD = 500_000
	volumeRatio           = 0.15
	marketCapMultiplier   = 10_000_000
)

// ChainConfig bundles everything the snapshot service needs for one chain.
type ChainConfig struct {
	Name          string
	ID            int
	Adapter       chainadapter.Adapter
	Tokens        *tokenlist.Source
	StableAddress string // lowercase; not read by GetSnapshot, which quotes prices in the best route's base token
	BaseTokens    []discovery.BaseToken
}

// Service assembles ChainSnapshot responses.
type Service struct {
	chains     map[string]ChainConfig
	store      *storage.Store
	cache      *cache.Cache
	controller *poolcontroller.Controller
	discovery  *discovery.Manager
	logger     *zap.Logger

	entryMu    sync.Mutex
	entryCache map[string]entryCacheRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entryCacheRecord struct {
	entry      types.SnapshotEntry
	observedAt time.Time
}

// New returns a Service over the given chains.
func New(chains []ChainConfig, store *storage.Store, sharedCache *cache.Cache, controller *poolcontroller.Controller, disc *discovery.Manager, logger *zap.Logger) *Service {
	byName := make(map[string]ChainConfig, len(chains))
	for _, c := range chains {
		byName[strings.ToLower(c.Name)] = c
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		chains:     byName,
		store:      store,
		cache:      sharedCache,
		controller: controller,
		discovery:  disc,
		logger:     logger,
		entryCache: make(map[string]entryCacheRecord),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Shutdown cancels any in-flight discovery jobs launched by GetSnapshot and
// blocks until they have returned, or until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetSnapshot returns a paginated snapshot for chainName's [offset,
// offset+limit) token window.
func (s *Service) GetSnapshot(ctx context.Context, chainName string, offset, limit int) (types.ChainSnapshot, error) {
	start := time.Now()
	chain, ok := s.chains[strings.ToLower(chainName)]
	if !ok {
		metrics.SnapshotRequestDurationSeconds.WithLabelValues(chainName, "not_found").Observe(time.Since(start).Seconds())
		return types.ChainSnapshot{}, ErrChainNotSupported
	}

	tokens := chain.Tokens.Merged()
	window := windowTokens(tokens, offset, limit)

	registry := s.store.GetPoolRegistry(chain.ID)

	entries := make([]types.SnapshotEntry, 0, len(window))
	var missing []string
	for _, token := range window {
		entry, ok := s.resolveEntry(chain, registry, token)
		if !ok {
			missing = append(missing, token.Lower())
			metrics.SnapshotSyntheticEntriesTotal.WithLabelValues(chain.Name).Inc()
		}
		entries = append(entries, entry)
	}

	if len(missing) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runDiscoveryBatch(chain, missing)
		}()
	}

	metrics.SnapshotRequestDurationSeconds.WithLabelValues(chain.Name, "ok").Observe(time.Since(start).Seconds())
	return types.ChainSnapshot{
		Timestamp: time.Now().UnixMilli(),
		Chain:     chain.Name,
		Entries:   entries,
	}, nil
}

// windowTokens slices [offset, offset+limit). limit=0 is a valid request for
// an empty window and is never defaulted here — callers (httpapi) are
// responsible for distinguishing an absent limit from an explicit zero.
func windowTokens(tokens []types.Token, offset, limit int) []types.Token {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 100 {
		limit = 100
	}
	if limit == 0 || offset >= len(tokens) {
		return nil
	}
	end := offset + limit
	if end > len(tokens) {
		end = len(tokens)
	}
	return tokens[offset:end]
}

// resolveEntry returns the entry for token and whether it came from a real
// pricing route (false means it is a synthetic fallback and the caller
// should schedule discovery).
func (s *Service) resolveEntry(chain ChainConfig, registry *types.PoolRegistry, token types.Token) (types.SnapshotEntry, bool) {
	cacheKey := strings.ToLower(chain.Name) + ":" + token.Lower()
	s.entryMu.Lock()
	rec, hit := s.entryCache[cacheKey]
	s.entryMu.Unlock()
	if hit && time.Since(rec.observedAt) < CacheTTL {
		return rec.entry, true
	}

	route, pool, ok := registry.BestRoute(token.Lower())
	if !ok {
		return s.syntheticEntry(token), false
	}

	sample, ok := s.cache.Get(chain.ID, pool.Address)
	if !ok {
		s.controller.Track(chain.ID, pool)
		return s.syntheticEntry(token), false
	}

	poolState, ok := toPricingPoolState(pool, sample, token.Lower(), decimalsFor(chain, token, route, registry))
	if !ok {
		return s.syntheticEntry(token), false
	}

	price := pricing.ComputeSpotPrice(poolState, token.Lower(), route.Base)
	price0USD, price1USD := 1.0, price
	if poolState.Token0 == token.Lower() {
		price0USD, price1USD = price, 1.0
	}
	liquidity := pricing.ComputeLiquidityUSD(poolState, price0USD, price1USD)

	entry := types.SnapshotEntry{
		Token:        token,
		PriceUSD:     price,
		LiquidityUSD: liquidity,
		VolumeUSD:    liquidity * volumeRatio,
		MarketCapUSD: price * marketCapMultiplier,
	}.WithObservedAt(sample.ObservedAt)

	s.entryMu.Lock()
	s.entryCache[cacheKey] = entryCacheRecord{entry: entry, observedAt: time.Now()}
	s.entryMu.Unlock()
	return entry, true
}

func (s *Service) syntheticEntry(token types.Token) types.SnapshotEntry {
	return types.SnapshotEntry{
		Token:        token,
		PriceUSD:     syntheticPriceUSD,
		LiquidityUSD: syntheticLiquidityUSD,
		VolumeUSD:    syntheticLiquidityUSD * volumeRatio,
		MarketCapUSD: syntheticPriceUSD * marketCapMultiplier,
	}
}

// decimalsFor looks up the decimals of token and its route's base token.
// Both default to 18 (the common ERC20 case) when not present in the
// merged token list, since PoolMetadata itself carries no decimals.
func decimalsFor(chain ChainConfig, token types.Token, route types.PricingRoute, registry *types.PoolRegistry) [2]uint8 {
	target := token.Decimals
	if target == 0 {
		target = 18
	}
	base := uint8(18)
	for _, t := range chain.Tokens.Merged() {
		if t.Lower() == route.Base {
			base = t.Decimals
			break
		}
	}
	if base == 0 {
		base = 18
	}
	return [2]uint8{target, base}
}

func toPricingPoolState(pool types.PoolMetadata, sample types.PoolStateSample, targetLower string, decimals [2]uint8) (pricing.PoolState, bool) {
	decTarget, decBase := decimals[0], decimals[1]
	token0, token1 := strings.ToLower(pool.Token0), strings.ToLower(pool.Token1)
	if token0 == "" || token1 == "" || token0 == token1 {
		return pricing.PoolState{}, false
	}

	decimals0, decimals1 := decBase, decTarget
	if token0 == targetLower {
		decimals0, decimals1 = decTarget, decBase
	}

	state := pricing.PoolState{
		DexType:   pool.DexType,
		Token0:    token0,
		Token1:    token1,
		Decimals0: decimals0,
		Decimals1: decimals1,
	}

	if pool.DexType == types.DexV3 {
		sqrtPriceX96, ok := new(big.Int).SetString(sample.SqrtPriceX96, 10)
		if !ok {
			return pricing.PoolState{}, false
		}
		liquidity, _ := new(big.Int).SetString(sample.Liquidity, 10)
		state.SqrtPriceX96 = sqrtPriceX96
		state.Liquidity = liquidity
		return state, true
	}

	reserve0, ok0 := new(big.Int).SetString(sample.Reserve0, 10)
	reserve1, ok1 := new(big.Int).SetString(sample.Reserve1, 10)
	if !ok0 || !ok1 {
		return pricing.PoolState{}, false
	}
	state.Reserve0 = reserve0
	state.Reserve1 = reserve1
	return state, true
}

func (s *Service) runDiscoveryBatch(chain ChainConfig, missing []string) {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	for _, tokenAddress := range missing {
		if ctx.Err() != nil {
			return
		}
		s.discovery.Discover(ctx, chain.Adapter, tokenAddress, chain.BaseTokens)
	}
}
