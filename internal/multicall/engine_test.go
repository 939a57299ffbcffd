package multicall_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/multicall"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

func registryWith(pools ...types.PoolMetadata) *types.PoolRegistry {
	reg := types.NewPoolRegistry()
	for _, p := range pools {
		reg.AddPool(p)
	}
	return reg
}

func aliveFor(pools ...types.PoolMetadata) []*types.AlivePool {
	out := make([]*types.AlivePool, 0, len(pools))
	for _, p := range pools {
		out = append(out, &types.AlivePool{Address: p.Lower(), ChainID: 1, Tier: types.TierNormal})
	}
	return out
}

func TestCreateBatchesRespectsMaxWeight(t *testing.T) {
	v3Fee := uint32(3000)
	pools := []types.PoolMetadata{
		{Address: "0xPoolA", DexType: types.DexV3, Token0: "0xa", Token1: "0xb", FeeTier: &v3Fee, Weight: types.WeightFor(types.DexV3)},
		{Address: "0xPoolB", DexType: types.DexV3, Token0: "0xc", Token1: "0xd", FeeTier: &v3Fee, Weight: types.WeightFor(types.DexV3)},
		{Address: "0xPoolC", DexType: types.DexV2, Token0: "0xe", Token1: "0xf", Weight: types.WeightFor(types.DexV2)},
	}
	reg := registryWith(pools...)
	alive := aliveFor(pools...)

	engine := multicall.New(nil, 3, zap.NewExample()) // weight 3: at most one V3 (2) + one V2 (1) per batch
	batches := engine.CreateBatches(alive, reg)

	require.Len(t, batches, 2, "two V3 pools (weight 2 each) can't share a weight-3 batch")
	totalPools := 0
	for _, b := range batches {
		totalPools += len(b)
	}
	require.Equal(t, 3, totalPools)
}

func TestExecuteBatchesRoundTripsThroughMockAdapter(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 1800.0)
	fee := uint32(3000)
	v3Addr, ok := adapter.ComputePoolAddress("0xTokenA", "0xTokenB", &fee)
	require.True(t, ok)
	v2Addr, ok := adapter.ComputePoolAddress("0xTokenC", "0xTokenD", nil)
	require.True(t, ok)

	pools := []types.PoolMetadata{
		{Address: v3Addr, DexType: types.DexV3, Token0: "0xtokena", Token1: "0xtokenb", FeeTier: &fee, Weight: types.WeightFor(types.DexV3)},
		{Address: v2Addr, DexType: types.DexV2, Token0: "0xtokenc", Token1: "0xtokend", Weight: types.WeightFor(types.DexV2)},
	}
	reg := registryWith(pools...)
	alive := aliveFor(pools...)

	engine := multicall.New([]chainadapter.Adapter{adapter}, multicall.DefaultMaxBatchWeight, zap.NewExample())
	batches := engine.CreateBatches(alive, reg)
	results := engine.ExecuteBatches(context.Background(), batches)

	require.Len(t, results, 2)
	byAddress := make(map[string]multicall.Result, len(results))
	for _, r := range results {
		require.True(t, r.Success)
		byAddress[r.PoolAddress] = r
	}

	v3Result := byAddress[v3Addr]
	require.NotEmpty(t, v3Result.Data.SqrtPriceX96, "V3 slot0 must decode through the real ABI codec, not a marker payload")
	require.NotEmpty(t, v3Result.Data.Liquidity)

	v2Result := byAddress[v2Addr]
	require.NotEmpty(t, v2Result.Data.Reserve0, "V2 getReserves must decode through the real ABI codec, not a marker payload")
	require.NotEmpty(t, v2Result.Data.Reserve1)
}

func TestExecuteBatchesWithNoAdaptersReturnsNil(t *testing.T) {
	pools := []types.PoolMetadata{
		{Address: "0xdead", DexType: types.DexV2, Token0: "0xa", Token1: "0xb", Weight: types.WeightFor(types.DexV2)},
	}
	reg := registryWith(pools...)
	alive := aliveFor(pools...)

	// A mock adapter that has never seen this pool reports the sub-call as
	// failed but the aggregate call itself still succeeds, so exercise the
	// no-adapters case instead: ExecuteBatches must return nothing rather
	// than panic when there is no adapter to dispatch to.
	engine := multicall.New(nil, multicall.DefaultMaxBatchWeight, zap.NewExample())
	batches := engine.CreateBatches(alive, reg)
	results := engine.ExecuteBatches(context.Background(), batches)
	require.Nil(t, results)
}

func TestExecuteBatchesMarksUnknownPoolUnsuccessful(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 1800.0)
	pools := []types.PoolMetadata{
		{Address: "0xneverregistered", DexType: types.DexV2, Token0: "0xa", Token1: "0xb", Weight: types.WeightFor(types.DexV2)},
	}
	reg := registryWith(pools...)
	alive := aliveFor(pools...)

	engine := multicall.New([]chainadapter.Adapter{adapter}, multicall.DefaultMaxBatchWeight, zap.NewExample())
	batches := engine.CreateBatches(alive, reg)
	results := engine.ExecuteBatches(context.Background(), batches)

	require.Len(t, results, 1)
	require.False(t, results[0].Success)
}
