// Package multicall batches pool reads into weight-bounded Multicall3 calls
// and dispatches them across a chain's configured RPC providers.
package multicall

import (
	"context"
	"math/big"
	"sort"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/metrics"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

var (
	v3PoolABI = chainadapter.V3PoolABI
	v2PairABI = chainadapter.V2PairABI
)

func stringifyUint(v interface{}) string {
	n := *ethabi.ConvertType(v, new(*big.Int)).(**big.Int)
	return n.String()
}

// DefaultMaxBatchWeight bounds the summed pool weight per Multicall3 call.
const DefaultMaxBatchWeight = 200

// Result is one pool's outcome from a batch of aggregate calls.
type Result struct {
	PoolAddress string
	Success     bool
	Data        chainadapter.PoolState
	BlockNumber uint64
}

// poolCall is an (pool, sub-calls, weight) unit prepared for batching.
type poolCall struct {
	pool   types.PoolMetadata
	calls  []chainadapter.Call
	weight int
}

// Engine batches and executes pool reads against one chain's adapters.
type Engine struct {
	adapters       []chainadapter.Adapter
	maxBatchWeight int
	logger         *zap.Logger
}

// New returns an Engine that round-robins across adapters (all adapters for
// the same chain, e.g. multiple RPC providers for redundancy).
func New(adapters []chainadapter.Adapter, maxBatchWeight int, logger *zap.Logger) *Engine {
	if maxBatchWeight <= 0 {
		maxBatchWeight = DefaultMaxBatchWeight
	}
	return &Engine{adapters: adapters, maxBatchWeight: maxBatchWeight, logger: logger}
}

// CreateBatches groups pools into weight-bounded batches in pool-insertion
// order, breaking ties across equal-weight pools by lowercase address.
func (e *Engine) CreateBatches(pools []*types.AlivePool, registry *types.PoolRegistry) [][]poolCall {
	ordered := make([]types.PoolMetadata, 0, len(pools))
	for _, alive := range pools {
		meta, ok := registry.Pools[alive.Address]
		if !ok {
			continue
		}
		ordered = append(ordered, meta)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		wi, wj := types.WeightFor(ordered[i].DexType), types.WeightFor(ordered[j].DexType)
		if wi != wj {
			return false // preserve insertion order among different weights
		}
		return ordered[i].Lower() < ordered[j].Lower()
	})

	var batches [][]poolCall
	var current []poolCall
	currentWeight := 0
	for _, meta := range ordered {
		pc := buildPoolCall(meta)
		if currentWeight+pc.weight > e.maxBatchWeight && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentWeight = 0
		}
		current = append(current, pc)
		currentWeight += pc.weight
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func buildPoolCall(meta types.PoolMetadata) poolCall {
	weight := types.WeightFor(meta.DexType)
	calls := make([]chainadapter.Call, 0, 2)

	if meta.DexType == types.DexV3 {
		data, _ := v3PoolABI.Pack("slot0")
		calls = append(calls, chainadapter.Call{Target: meta.Address, CallData: data})
		liqData, _ := v3PoolABI.Pack("liquidity")
		calls = append(calls, chainadapter.Call{Target: meta.Address, CallData: liqData})
	} else {
		data, _ := v2PairABI.Pack("getReserves")
		calls = append(calls, chainadapter.Call{Target: meta.Address, CallData: data})
	}

	return poolCall{pool: meta, calls: calls, weight: weight}
}

// ExecuteBatches dispatches batches round-robin across e.adapters and
// returns one Result per pool, in the same order CreateBatches produced
// them. A batch whose aggregate call itself fails marks every pool in that
// batch failed with BlockNumber=0, without aborting sibling batches.
func (e *Engine) ExecuteBatches(ctx context.Context, batches [][]poolCall) []Result {
	if len(e.adapters) == 0 {
		return nil
	}

	allResults := make([][]Result, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		adapter := e.adapters[i%len(e.adapters)]
		g.Go(func() error {
			allResults[i] = e.executeBatch(gctx, adapter, batch)
			return nil
		})
	}
	_ = g.Wait() // executeBatch never returns an error; failures are encoded per-pool

	var out []Result
	for _, batchResults := range allResults {
		out = append(out, batchResults...)
	}
	return out
}

func (e *Engine) executeBatch(ctx context.Context, adapter chainadapter.Adapter, batch []poolCall) []Result {
	var calls []chainadapter.Call
	callOwner := make([]int, 0) // index into batch, one entry per call
	for pi, pc := range batch {
		for range pc.calls {
			callOwner = append(callOwner, pi)
		}
		calls = append(calls, pc.calls...)
	}

	blockNumber, aggResults, err := adapter.Aggregate(ctx, calls)
	if err != nil {
		e.logger.Warn("multicall aggregate failed; failing batch",
			zap.String("chain", adapter.ChainName()), zap.Error(err))
		metrics.MulticallBatchFailuresTotal.WithLabelValues(adapter.ChainName()).Inc()
		results := make([]Result, len(batch))
		for i, pc := range batch {
			results[i] = Result{PoolAddress: pc.pool.Address, Success: false}
		}
		return results
	}

	results := make([]Result, len(batch))
	for i, pc := range batch {
		results[i] = Result{PoolAddress: pc.pool.Address, BlockNumber: blockNumber}
	}

	for callIdx, agg := range aggResults {
		poolIdx := callOwner[callIdx]
		if !agg.Success || len(agg.ReturnData) == 0 {
			continue
		}
		results[poolIdx] = decodeInto(results[poolIdx], batch[poolIdx].pool, agg)
	}
	return results
}

func decodeInto(result Result, pool types.PoolMetadata, agg chainadapter.AggregateResult) Result {
	result.Success = true
	if pool.DexType == types.DexV3 {
		if out, err := v3PoolABI.Methods["slot0"].Outputs.UnpackValues(agg.ReturnData); err == nil && len(out) > 0 {
			result.Data.SqrtPriceX96 = stringifyUint(out[0])
		} else if out, err := v3PoolABI.Methods["liquidity"].Outputs.UnpackValues(agg.ReturnData); err == nil && len(out) > 0 {
			result.Data.Liquidity = stringifyUint(out[0])
		}
		return result
	}
	if out, err := v2PairABI.Methods["getReserves"].Outputs.UnpackValues(agg.ReturnData); err == nil && len(out) >= 2 {
		result.Data.Reserve0 = stringifyUint(out[0])
		result.Data.Reserve1 = stringifyUint(out[1])
	}
	return result
}
