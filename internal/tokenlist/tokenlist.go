// Package tokenlist merges a chain's static configured token list with an
// externally-fetched dynamic list (Trust Wallet for Ethereum, the Polygon
// token list for Polygon), deduplicated by lowercase address.
package tokenlist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// FetchTimeout bounds the startup dynamic-list fetch.
const FetchTimeout = 15 * time.Second

// Source holds a chain's static list plus whatever dynamic list was last
// fetched successfully. Readers see a consistent merged list via a single
// atomic pointer swap; writers never block readers.
type Source struct {
	static  []types.Token
	dynamic atomic.Pointer[[]types.Token]
	url     string
	logger  *zap.Logger
}

// New returns a Source seeded with static and configured to fetch dynamic
// entries from url (empty disables the dynamic fetch).
func New(static []types.Token, url string, logger *zap.Logger) *Source {
	return &Source{static: static, url: url, logger: logger}
}

// Refresh performs a best-effort fetch of the dynamic list. On any failure
// it leaves the previously loaded dynamic list (or none) in place; the
// merged list silently falls back to the static list alone.
func (s *Source) Refresh(ctx context.Context) {
	if s.url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	tokens, err := fetchTokenList(ctx, s.url)
	if err != nil {
		s.logger.Warn("dynamic token list fetch failed; using static list", zap.String("url", s.url), zap.Error(err))
		return
	}
	s.dynamic.Store(&tokens)
}

// Merged returns the static list followed by the dynamic list, deduplicated
// by lowercase address with first occurrence preserved.
func (s *Source) Merged() []types.Token {
	seen := make(map[string]struct{}, len(s.static))
	out := make([]types.Token, 0, len(s.static))

	for _, t := range s.static {
		lower := t.Lower()
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, t)
	}

	if dyn := s.dynamic.Load(); dyn != nil {
		for _, t := range *dyn {
			lower := t.Lower()
			if _, ok := seen[lower]; ok {
				continue
			}
			seen[lower] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

type trustWalletEntry struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	ChainID  int    `json:"chainId"`
	LogoURI  string `json:"logoURI"`
}

type trustWalletList struct {
	Tokens []trustWalletEntry `json:"tokens"`
}

func fetchTokenList(ctx context.Context, url string) ([]types.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var list trustWalletList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}

	out := make([]types.Token, 0, len(list.Tokens))
	for _, e := range list.Tokens {
		out = append(out, types.Token{
			Address:  strings.ToLower(e.Address),
			Symbol:   e.Symbol,
			Name:     e.Name,
			Decimals: e.Decimals,
			ChainID:  e.ChainID,
			LogoURI:  e.LogoURI,
		})
	}
	return out, nil
}
