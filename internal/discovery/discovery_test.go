package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/discovery"
	"github.com/nemonetwork/dex-aggregator/internal/poolcontroller"
	"github.com/nemonetwork/dex-aggregator/internal/storage"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

func newManager(t *testing.T, retryWindow time.Duration) (*discovery.Manager, *storage.Store) {
	t.Helper()
	store, err := storage.New(t.TempDir(), zap.NewExample())
	require.NoError(t, err)
	return discovery.New(store, poolcontroller.New(), retryWindow, zap.NewExample()), store
}

func TestDiscoverPopulatesRegistry(t *testing.T) {
	mgr, store := newManager(t, time.Minute)
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	baseTokens := []discovery.BaseToken{{Symbol: "USDC", Address: "0xUSDC"}}

	mgr.Discover(context.Background(), adapter, "0xTARGET", baseTokens)

	reg := store.GetPoolRegistry(1)
	require.NotEmpty(t, reg.Pools)
	require.NotEmpty(t, reg.PricingRoutes["0xtarget"])
}

func TestDiscoverSkipsWithinRetryWindow(t *testing.T) {
	mgr, store := newManager(t, time.Hour)
	adapter := chainadapter.NewMockAdapter("ethereum", 1, 2000.0)
	baseTokens := []discovery.BaseToken{{Symbol: "USDC", Address: "0xUSDC"}}

	mgr.Discover(context.Background(), adapter, "0xTARGET", baseTokens)

	// Wipe the persisted registry directly to prove the second call is a
	// true no-op rather than happening to find the same pools again.
	require.NoError(t, store.SavePoolRegistry(1, types.NewPoolRegistry()))

	mgr.Discover(context.Background(), adapter, "0xTARGET", baseTokens)
	second := store.GetPoolRegistry(1)
	require.Empty(t, second.Pools, "second call within the retry window must not re-discover")
}
