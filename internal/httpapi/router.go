// Package httpapi exposes the snapshot service over HTTP: the paginated
// snapshot endpoint plus health and metrics ambient endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/snapshot"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

const (
	defaultOffset = 0
	defaultLimit  = 25
	maxLimit      = 100
)

type errorBody struct {
	Message string `json:"message"`
}

// NewRouter builds the chi router.
func NewRouter(svc *snapshot.Service, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(zapRequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/snapshots/{chain}", handleSnapshot(svc, logger))

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleSnapshot(svc *snapshot.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chain := chi.URLParam(r, "chain")
		offset := parseIntParam(r, "offset", defaultOffset)
		// limit=0 is a valid, explicit request for an empty window; only a
		// missing/unparseable limit falls back to defaultLimit.
		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				limit = v
			}
		}
		if limit > maxLimit {
			limit = maxLimit
		}
		if limit < 0 {
			limit = 0
		}
		if offset < 0 {
			offset = 0
		}

		result, err := svc.GetSnapshot(r.Context(), chain, offset, limit)
		if err != nil {
			if errors.Is(err, snapshot.ErrChainNotSupported) {
				writeJSON(w, http.StatusNotFound, errorBody{Message: "Chain not supported"})
				return
			}
			logger.Error("snapshot request failed", zap.String("chain", chain), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Internal server error"})
			return
		}

		if age, ok := oldestEntryAge(result); ok {
			w.Header().Set("X-Snapshot-Oldest-Age-Seconds", strconv.FormatFloat(age.Seconds(), 'f', 3, 64))
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// oldestEntryAge reports how long ago the stalest entry in snap was
// observed, for clients that want to gauge snapshot freshness.
func oldestEntryAge(snap types.ChainSnapshot) (time.Duration, bool) {
	var oldest time.Time
	found := false
	for _, entry := range snap.Entries {
		observedAt := entry.ObservedAt()
		if observedAt.IsZero() {
			continue
		}
		if !found || observedAt.Before(oldest) {
			oldest = observedAt
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return time.Since(oldest), true
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func zapRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
