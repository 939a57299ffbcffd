package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/cache"
	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/discovery"
	"github.com/nemonetwork/dex-aggregator/internal/httpapi"
	"github.com/nemonetwork/dex-aggregator/internal/poolcontroller"
	"github.com/nemonetwork/dex-aggregator/internal/snapshot"
	"github.com/nemonetwork/dex-aggregator/internal/storage"
	"github.com/nemonetwork/dex-aggregator/internal/tokenlist"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewExample()
	store, err := storage.New(t.TempDir(), logger)
	require.NoError(t, err)
	sharedCache, err := cache.New(10)
	require.NoError(t, err)
	controller := poolcontroller.New()
	disc := discovery.New(store, controller, time.Minute, logger)

	tokens := tokenlist.New([]types.Token{{Address: "0xTarget", Symbol: "TGT", Decimals: 18}}, "", logger)
	chain := snapshot.ChainConfig{Name: "ethereum", ID: 1, Adapter: chainadapter.NewMockAdapter("ethereum", 1, 2000.0), Tokens: tokens}
	svc := snapshot.New([]snapshot.ChainConfig{chain}, store, sharedCache, controller, disc, logger)

	return httpapi.NewRouter(svc, logger)
}

func TestHealthzReturnsOK(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSnapshotEndpointReturnsEntriesForKnownChain(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/snapshots/ethereum", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap types.ChainSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "ethereum", snap.Chain)
	require.Len(t, snap.Entries, 1)
}

func TestSnapshotEndpointUnknownChainReturns404(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/snapshots/nowhere", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshotEndpointClampsOversizedLimit(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/snapshots/ethereum?limit=1000&offset=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSnapshotEndpointExplicitZeroLimitReturnsEmptyEntries(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/snapshots/ethereum?limit=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap types.ChainSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Empty(t, snap.Entries, "an explicit limit=0 must return an empty window, not the default")
}

func TestSnapshotEndpointMissingLimitUsesDefault(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/snapshots/ethereum", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap types.ChainSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.Entries, "an absent limit must fall back to the default window")
}

func TestMetricsEndpointServed(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
