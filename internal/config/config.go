// Package config loads aggregator configuration from environment
// variables (with an optional YAML file overlay) via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// ChainConfig holds the per-chain settings the aggregator needs.
type ChainConfig struct {
	Name          string
	ChainID       int
	RPCURLs       []string
	V3FactoryAddr string
	V2FactoryAddr string
	TokenListURL  string
	StableAddress string
	BaseTokens    []string
	// StaticTokens is the chain's canonical seed list (native wrapped asset
	// first), merged ahead of whatever the dynamic TokenListURL fetch
	// returns so a snapshot is never empty on cold start.
	StaticTokens []types.Token
}

// Config is the fully resolved aggregator configuration.
type Config struct {
	HTTPAddr             string
	TheGraphAPIKey       string
	EtherscanAPIKey      string
	MaxBatchWeight       int
	SchedulerPeriod      time.Duration
	DiscoveryRetryWindow time.Duration
	CacheTTL             time.Duration
	CacheCapacity        int
	StorageDir           string
	ShutdownGrace        time.Duration
	Chains               []ChainConfig
}

// Load builds a Config from environment variables (prefixed DEX_AGGREGATOR)
// and an optional config file at configPath (empty skips the file).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEX_AGGREGATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("max_batch_weight", 200)
	v.SetDefault("scheduler_period", "10s")
	v.SetDefault("discovery_retry_window", "300s")
	v.SetDefault("cache_ttl", "10s")
	v.SetDefault("cache_capacity", 100_000)
	v.SetDefault("storage_dir", "./data")
	v.SetDefault("shutdown_grace", "10s")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	schedulerPeriod, err := time.ParseDuration(v.GetString("scheduler_period"))
	if err != nil {
		return nil, fmt.Errorf("config: scheduler_period: %w", err)
	}
	retryWindow, err := time.ParseDuration(v.GetString("discovery_retry_window"))
	if err != nil {
		return nil, fmt.Errorf("config: discovery_retry_window: %w", err)
	}
	cacheTTL, err := time.ParseDuration(v.GetString("cache_ttl"))
	if err != nil {
		return nil, fmt.Errorf("config: cache_ttl: %w", err)
	}
	shutdownGrace, err := time.ParseDuration(v.GetString("shutdown_grace"))
	if err != nil {
		return nil, fmt.Errorf("config: shutdown_grace: %w", err)
	}

	chains := []ChainConfig{
		{
			Name:          "ethereum",
			ChainID:       1,
			RPCURLs:       splitNonEmpty(v.GetString("ethereum_rpc_urls")),
			V3FactoryAddr: v.GetString("ethereum_v3_factory"),
			V2FactoryAddr: v.GetString("ethereum_v2_factory"),
			TokenListURL:  v.GetString("ethereum_token_list_url"),
			StableAddress: lowerOrDefault(v.GetString("ethereum_stable_address"), "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
			BaseTokens:    defaultBaseTokens(false),
			StaticTokens:  ethereumStaticTokens(),
		},
		{
			Name:          "polygon",
			ChainID:       137,
			RPCURLs:       splitNonEmpty(v.GetString("polygon_rpc_urls")),
			V3FactoryAddr: v.GetString("polygon_v3_factory"),
			V2FactoryAddr: v.GetString("polygon_v2_factory"),
			TokenListURL:  v.GetString("polygon_token_list_url"),
			StableAddress: lowerOrDefault(v.GetString("polygon_stable_address"), "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"),
			BaseTokens:    defaultBaseTokens(true),
			StaticTokens:  polygonStaticTokens(),
		},
	}

	return &Config{
		HTTPAddr:             v.GetString("http_addr"),
		TheGraphAPIKey:       v.GetString("the_graph_api_key"),
		EtherscanAPIKey:      v.GetString("etherscan_api_key"),
		MaxBatchWeight:       v.GetInt("max_batch_weight"),
		SchedulerPeriod:      schedulerPeriod,
		DiscoveryRetryWindow: retryWindow,
		CacheTTL:             cacheTTL,
		CacheCapacity:        v.GetInt("cache_capacity"),
		StorageDir:           v.GetString("storage_dir"),
		ShutdownGrace:        shutdownGrace,
		Chains:               chains,
	}, nil
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowerOrDefault(raw, fallback string) string {
	if raw == "" {
		return strings.ToLower(fallback)
	}
	return strings.ToLower(raw)
}

// defaultBaseTokens lists the base-token probe set used by discovery:
// USDC, USDT, DAI, WETH everywhere, plus WMATIC on Polygon.
func defaultBaseTokens(isPolygon bool) []string {
	base := []string{
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", // USDC
		"0xdac17f958d2ee523a2206206994597c13d831ec7", // USDT
		"0x6b175474e89094c44da98b954eedeac495271d0f", // DAI
		"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", // WETH
	}
	if isPolygon {
		base = append(base, "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270") // WMATIC
	}
	return base
}

// ethereumStaticTokens is the Ethereum mainnet seed list. WETH is listed
// first so it is the first entry a cold-start snapshot ever returns.
func ethereumStaticTokens() []types.Token {
	return []types.Token{
		{Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, ChainID: 1},
		{Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Name: "USD Coin", Decimals: 6, ChainID: 1},
		{Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT", Name: "Tether USD", Decimals: 6, ChainID: 1},
		{Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, ChainID: 1},
		{Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Symbol: "WBTC", Name: "Wrapped BTC", Decimals: 8, ChainID: 1},
	}
}

// polygonStaticTokens is the Polygon PoS seed list. WMATIC is listed first
// so it is the first entry a cold-start snapshot ever returns.
func polygonStaticTokens() []types.Token {
	return []types.Token{
		{Address: "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", Symbol: "WMATIC", Name: "Wrapped Matic", Decimals: 18, ChainID: 137},
		{Address: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", Symbol: "USDC", Name: "USD Coin (PoS)", Decimals: 6, ChainID: 137},
		{Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Symbol: "USDT", Name: "Tether USD (PoS)", Decimals: 6, ChainID: 137},
		{Address: "0x8f3cf7ad23cd3cadbd9735aff958023239c6a063", Symbol: "DAI", Name: "Dai Stablecoin (PoS)", Decimals: 18, ChainID: 137},
		{Address: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", Symbol: "WETH", Name: "Wrapped Ether (PoS)", Decimals: 18, ChainID: 137},
	}
}
