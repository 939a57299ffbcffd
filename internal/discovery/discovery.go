// Package discovery expands the pool registry on demand: given a token
// with no known pricing route, it probes a product of base tokens and fee
// tiers to find candidate pools, writing whatever it finds into Storage and
// the Pool Controller.
package discovery

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/metrics"
	"github.com/nemonetwork/dex-aggregator/internal/poolcontroller"
	"github.com/nemonetwork/dex-aggregator/internal/storage"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// DefaultRetryWindow bounds how often the same token can be re-probed,
// including after a successful discovery, to cap load during an outage.
const DefaultRetryWindow = 5 * time.Minute

var feeTiers = []uint32{100, 500, 3000, 10000}

const probeSleep = 100 * time.Millisecond

// BaseToken is a candidate quote-side token to probe against.
type BaseToken struct {
	Symbol  string
	Address string
}

// Manager discovers pools for tokens lacking a pricing route.
type Manager struct {
	store      *storage.Store
	controller *poolcontroller.Controller
	retryWindow time.Duration
	logger     *zap.Logger

	mu           sync.Mutex
	attemptLocks map[string]*sync.Mutex
	lastAttempt  map[string]time.Time
}

// New returns a Manager. retryWindow <= 0 uses DefaultRetryWindow.
func New(store *storage.Store, controller *poolcontroller.Controller, retryWindow time.Duration, logger *zap.Logger) *Manager {
	if retryWindow <= 0 {
		retryWindow = DefaultRetryWindow
	}
	return &Manager{
		store:        store,
		controller:   controller,
		retryWindow:  retryWindow,
		logger:       logger,
		attemptLocks: make(map[string]*sync.Mutex),
		lastAttempt:  make(map[string]time.Time),
	}
}

func attemptKey(chainID int, tokenAddress string) string {
	return strings.ToLower(tokenAddress) + "@" + strconv.Itoa(chainID)
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.attemptLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.attemptLocks[key] = l
	}
	return l
}

// Discover probes for pools pricing tokenAddress against adapter's chain,
// using baseTokens as the candidate quote side. It is safe to call
// concurrently for disjoint tokens; concurrent calls for the same token on
// the same chain serialize, and the second caller observes the first
// caller's retry window and may skip entirely.
func (m *Manager) Discover(ctx context.Context, adapter chainadapter.Adapter, tokenAddress string, baseTokens []BaseToken) {
	chainID := adapter.ChainID()
	key := attemptKey(chainID, tokenAddress)

	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	last, seen := m.lastAttempt[key]
	m.mu.Unlock()
	if seen && time.Since(last) < m.retryWindow {
		metrics.DiscoveryAttemptsSkippedTotal.WithLabelValues(strconv.Itoa(chainID)).Inc()
		return
	}

	m.mu.Lock()
	m.lastAttempt[key] = time.Now()
	m.mu.Unlock()

	registry := m.store.GetPoolRegistry(chainID)
	found := 0

	tokenLower := strings.ToLower(tokenAddress)
	for _, base := range baseTokens {
		baseLower := strings.ToLower(base.Address)
		if baseLower == tokenLower {
			continue
		}
		for _, fee := range feeTiers {
			fee := fee
			select {
			case <-ctx.Done():
				m.persist(chainID, registry, found)
				return
			default:
			}

			addr, ok := adapter.ComputePoolAddress(tokenLower, baseLower, &fee)
			if !ok {
				continue
			}
			state, err := adapter.ReadPoolState(ctx, addr)
			if err != nil {
				time.Sleep(probeSleep)
				continue
			}

			meta := types.PoolMetadata{
				Address: addr,
				DexType: types.DexV3,
				Token0:  state.Token0,
				Token1:  state.Token1,
				FeeTier: &fee,
				Weight:  types.WeightFor(types.DexV3),
			}
			registry.AddPool(meta)
			m.controller.Track(chainID, meta)
			found++

			time.Sleep(probeSleep)
		}
	}

	m.persist(chainID, registry, found)
}

func (m *Manager) persist(chainID int, registry *types.PoolRegistry, found int) {
	if err := m.store.SavePoolRegistry(chainID, registry); err != nil {
		m.logger.Error("failed to persist discovered pools",
			zap.Int("chainId", chainID), zap.Int("found", found), zap.Error(err))
		return
	}
	if found > 0 {
		m.logger.Info("discovery found pools", zap.Int("chainId", chainID), zap.Int("count", found))
		metrics.DiscoveryPoolsFoundTotal.WithLabelValues(strconv.Itoa(chainID)).Add(float64(found))
	}
}
