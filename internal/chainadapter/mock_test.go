package chainadapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
)

func TestMockComputePoolAddressIsStable(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	fee := uint32(3000)

	addr1, ok1 := adapter.ComputePoolAddress("0xAAA", "0xBBB", &fee)
	addr2, ok2 := adapter.ComputePoolAddress("0xbbb", "0xaaa", &fee)
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, addr1, addr2, "token order must not affect the derived address")
}

func TestMockComputePoolAddressRejectsIdenticalTokens(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	_, ok := adapter.ComputePoolAddress("0xAAA", "0xaaa", nil)
	require.False(t, ok)
}

func TestMockReadPoolStateAfterComputeAddress(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	fee := uint32(3000)
	addr, ok := adapter.ComputePoolAddress("0xAAA", "0xBBB", &fee)
	require.True(t, ok)

	state, err := adapter.ReadPoolState(context.Background(), addr)
	require.NoError(t, err)
	require.NotEmpty(t, state.SqrtPriceX96)
	require.NotEmpty(t, state.Liquidity)
}

func TestMockReadPoolStateUnknownPool(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	_, err := adapter.ReadPoolState(context.Background(), "0xneverseen")
	require.ErrorIs(t, err, chainadapter.ErrPoolNotFound)
}

func TestMockAggregateAdvancesBlockNumber(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	fee := uint32(3000)
	addr, _ := adapter.ComputePoolAddress("0xAAA", "0xBBB", &fee)
	slot0Data, err := chainadapter.V3PoolABI.Pack("slot0")
	require.NoError(t, err)

	block1, results1, err := adapter.Aggregate(context.Background(), []chainadapter.Call{{Target: addr, CallData: slot0Data}})
	require.NoError(t, err)
	require.Len(t, results1, 1)
	require.True(t, results1[0].Success)
	out, err := chainadapter.V3PoolABI.Methods["slot0"].Outputs.UnpackValues(results1[0].ReturnData)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	block2, _, err := adapter.Aggregate(context.Background(), []chainadapter.Call{{Target: addr, CallData: slot0Data}})
	require.NoError(t, err)
	require.Greater(t, block2, block1)
}

func TestMockAggregateUnknownPoolFails(t *testing.T) {
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	slot0Data, err := chainadapter.V3PoolABI.Pack("slot0")
	require.NoError(t, err)
	_, results, err := adapter.Aggregate(context.Background(), []chainadapter.Call{{Target: "0xneverseen", CallData: slot0Data}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
}
