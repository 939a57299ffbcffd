package tokenlist_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/tokenlist"
	"github.com/nemonetwork/dex-aggregator/internal/types"
)

func TestMergedReturnsStaticWhenDynamicDisabled(t *testing.T) {
	static := []types.Token{{Address: "0xAAA", Symbol: "AAA"}}
	src := tokenlist.New(static, "", zap.NewExample())
	merged := src.Merged()
	require.Len(t, merged, 1)
	require.Equal(t, "AAA", merged[0].Symbol)
}

func TestRefreshMergesDynamicListDeduped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tokens":[
			{"address":"0xAAA","symbol":"AAA","name":"Token A","decimals":18,"chainId":1},
			{"address":"0xCCC","symbol":"CCC","name":"Token C","decimals":6,"chainId":1}
		]}`))
	}))
	defer server.Close()

	static := []types.Token{{Address: "0xaaa", Symbol: "AAA-static"}}
	src := tokenlist.New(static, server.URL, zap.NewExample())
	src.Refresh(context.Background())

	merged := src.Merged()
	require.Len(t, merged, 2, "0xAAA from the dynamic list is deduped against the static entry")
	require.Equal(t, "AAA-static", merged[0].Symbol, "first occurrence (static) wins on duplicate address")

	var foundC bool
	for _, tok := range merged {
		if tok.Lower() == "0xccc" {
			foundC = true
		}
	}
	require.True(t, foundC)
}

func TestRefreshFallsBackToStaticOnFetchFailure(t *testing.T) {
	static := []types.Token{{Address: "0xaaa", Symbol: "AAA"}}
	src := tokenlist.New(static, "http://127.0.0.1:0/does-not-exist", zap.NewExample())
	src.Refresh(context.Background())
	require.Equal(t, static, src.Merged())
}
