// Package scheduler periodically ticks, asks the pool controller which
// pools are due, and drives a refresh cycle through the multicall engine.
package scheduler

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/cache"
	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/metrics"
	"github.com/nemonetwork/dex-aggregator/internal/multicall"
	"github.com/nemonetwork/dex-aggregator/internal/poolcontroller"
	"github.com/nemonetwork/dex-aggregator/internal/storage"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// DefaultPeriod is the tick interval, chosen to respect public-RPC rate caps.
const DefaultPeriod = 10 * time.Second

const fastRetryDelay = 5 * time.Second

// Chain bundles everything the scheduler needs to refresh one chain.
type Chain struct {
	ID     int
	Engine *multicall.Engine
}

// Scheduler drives periodic, per-chain pool refresh.
type Scheduler struct {
	period     time.Duration
	controller *poolcontroller.Controller
	store      *storage.Store
	cache      *cache.Cache
	chains     []Chain
	logger     *zap.Logger

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a Scheduler. period <= 0 uses DefaultPeriod.
func New(period time.Duration, controller *poolcontroller.Controller, store *storage.Store, sharedCache *cache.Cache, chains []Chain, logger *zap.Logger) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Scheduler{
		period:     period,
		controller: controller,
		store:      store,
		cache:      sharedCache,
		chains:     chains,
		logger:     logger,
	}
}

// Start begins ticking in a background goroutine. A second call is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)
}

// Stop cancels the running loop and waits up to the given grace window for
// the in-flight tick to finish.
func (s *Scheduler) Stop(grace time.Duration) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	started := s.started
	s.mu.Unlock()
	if !started || cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("scheduler did not stop within grace window", zap.Duration("grace", grace))
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, chain := range s.chains {
		due := s.controller.GetPoolsForRefresh(chain.ID)
		if len(due) == 0 {
			continue
		}
		s.refreshChain(ctx, chain, due)
	}
}

func (s *Scheduler) refreshChain(ctx context.Context, chain Chain, due []*types.AlivePool) {
	chainLabel := strconv.Itoa(chain.ID)
	start := time.Now()
	defer func() {
		metrics.SchedulerTickDurationSeconds.WithLabelValues(chainLabel).Observe(time.Since(start).Seconds())
	}()

	registry := s.store.GetPoolRegistry(chain.ID)

	batches := chain.Engine.CreateBatches(due, registry)
	results := chain.Engine.ExecuteBatches(ctx, batches)

	byAddress := make(map[string]multicall.Result, len(results))
	for _, r := range results {
		byAddress[r.PoolAddress] = r
	}

	for _, p := range due {
		result, ok := byAddress[p.Address]
		if !ok {
			continue
		}
		s.applyResult(chain.ID, p, result, registry)
	}
}

func (s *Scheduler) applyResult(chainID int, p *types.AlivePool, result multicall.Result, registry *types.PoolRegistry) {
	if !result.Success {
		s.controller.SetNextRefresh(chainID, p.Address, time.Now().Add(fastRetryDelay))
		return
	}

	if lastBlock := s.cache.BlockNumber(chainID, p.Address); result.BlockNumber == lastBlock && result.BlockNumber != 0 {
		s.controller.SetNextRefresh(chainID, p.Address, time.Now().Add(types.TierInterval(p.Tier)))
		return
	}

	price := tierComparisonScalar(registry.Pools[p.Address], result.Data)
	s.controller.RecordObservation(chainID, p.Address, result.BlockNumber, price)

	s.cache.Put(chainID, p.Address, types.PoolStateSample{
		PoolAddress:  p.Address,
		SqrtPriceX96: result.Data.SqrtPriceX96,
		Liquidity:    result.Data.Liquidity,
		Reserve0:     result.Data.Reserve0,
		Reserve1:     result.Data.Reserve1,
		BlockNumber:  result.BlockNumber,
		ObservedAt:   time.Now(),
	})
}

var two96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// tierComparisonScalar derives a single scalar used only to compare
// consecutive refreshes for tier transitions: for V3, sqrt(sqrtPriceX96 /
// 2^96); for V2, the raw reserve1/reserve0 ratio. Neither form is
// decimal-adjusted; only relative deltas across ticks of the same pool are
// meaningful.
func tierComparisonScalar(meta types.PoolMetadata, data chainadapter.PoolState) float64 {
	if meta.DexType == types.DexV3 {
		sqrtPriceX96, ok := new(big.Int).SetString(data.SqrtPriceX96, 10)
		if !ok || sqrtPriceX96.Sign() == 0 {
			return 0
		}
		ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), two96)
		f, _ := ratio.Float64()
		return math.Sqrt(f)
	}

	reserve0, ok0 := new(big.Int).SetString(data.Reserve0, 10)
	reserve1, ok1 := new(big.Int).SetString(data.Reserve1, 10)
	if !ok0 || !ok1 || reserve0 == nil || reserve0.Sign() == 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(reserve1), new(big.Float).SetInt(reserve0))
	f, _ := ratio.Float64()
	return f
}
