package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/storage"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

func TestSaveThenGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir, zap.NewExample())
	require.NoError(t, err)

	reg := types.NewPoolRegistry()
	reg.AddPool(types.PoolMetadata{Address: "0xPool", DexType: types.DexV2, Token0: "0xA", Token1: "0xB", Weight: 1})

	require.NoError(t, store.SavePoolRegistry(1, reg))

	loaded := store.GetPoolRegistry(1)
	require.Contains(t, loaded.Pools, "0xpool")
	require.Contains(t, loaded.PricingRoutes, "0xa")
}

func TestGetPoolRegistryMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir, zap.NewExample())
	require.NoError(t, err)

	reg := store.GetPoolRegistry(999)
	require.Empty(t, reg.Pools)
}

func TestGetPoolRegistryCorruptFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir, zap.NewExample())
	require.NoError(t, err)

	chainDir := filepath.Join(dir, "5")
	require.NoError(t, os.MkdirAll(chainDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(chainDir, "pools.json"), []byte("{not json"), 0o644))

	reg := store.GetPoolRegistry(5)
	require.Empty(t, reg.Pools)
}
