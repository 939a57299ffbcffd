package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nemonetwork/dex-aggregator/internal/cache"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := cache.New(10)
	require.NoError(t, err)

	sample := types.PoolStateSample{PoolAddress: "0xPool", BlockNumber: 42, ObservedAt: time.Now()}
	c.Put(1, "0xPool", sample)

	got, ok := c.Get(1, "0xpool") // case-insensitive key
	require.True(t, ok)
	require.Equal(t, uint64(42), got.BlockNumber)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, err := cache.New(10)
	require.NoError(t, err)
	_, ok := c.Get(1, "0xnope")
	require.False(t, ok)
}

func TestDistinctChainsDoNotCollide(t *testing.T) {
	c, err := cache.New(10)
	require.NoError(t, err)
	c.Put(1, "0xpool", types.PoolStateSample{BlockNumber: 1})
	c.Put(137, "0xpool", types.PoolStateSample{BlockNumber: 2})

	a, _ := c.Get(1, "0xpool")
	b, _ := c.Get(137, "0xpool")
	require.Equal(t, uint64(1), a.BlockNumber)
	require.Equal(t, uint64(2), b.BlockNumber)
}

func TestBlockNumberDefaultsToZero(t *testing.T) {
	c, err := cache.New(10)
	require.NoError(t, err)
	require.Equal(t, uint64(0), c.BlockNumber(1, "0xnever-seen"))
}

func TestDefaultCapacityUsedWhenNonPositive(t *testing.T) {
	c, err := cache.New(0)
	require.NoError(t, err)
	require.NotNil(t, c)
}
