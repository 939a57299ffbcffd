package chainadapter

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MockAdapter is a deterministic, in-memory Adapter for local development
// and tests. It never performs network I/O: pool addresses are derived by
// string concatenation and pool state is synthesized from a fixed base
// price, advancing its block number by one on every Aggregate call.
type MockAdapter struct {
	chainName string
	chainID   int
	basePrice float64

	mu          sync.Mutex
	blockNumber uint64
	pools       map[string]PoolState
}

var _ Adapter = (*MockAdapter)(nil)

// NewMockAdapter returns a mock adapter reporting basePrice as the implied
// token0/token1 ratio for every pool it is asked to read.
func NewMockAdapter(chainName string, chainID int, basePrice float64) *MockAdapter {
	return &MockAdapter{
		chainName:   chainName,
		chainID:     chainID,
		basePrice:   basePrice,
		blockNumber: 1,
		pools:       make(map[string]PoolState),
	}
}

func (a *MockAdapter) ChainName() string { return a.chainName }
func (a *MockAdapter) ChainID() int      { return a.chainID }

// ComputePoolAddress derives a stable synthetic address from the sorted
// token pair and whether a fee tier is given (v3) or not (v2), so repeated
// calls are idempotent. The fee value itself does not enter the address.
func (a *MockAdapter) ComputePoolAddress(tokenA, tokenB string, feeTier *uint32) (string, bool) {
	if strings.EqualFold(tokenA, tokenB) {
		return "", false
	}
	lowA, lowB := strings.ToLower(tokenA), strings.ToLower(tokenB)
	token0, token1 := lowA, lowB
	if token0 > token1 {
		token0, token1 = token1, token0
	}
	suffix := "v2"
	if feeTier != nil {
		suffix = "v3"
	}
	short := func(token string) string {
		token = strings.TrimPrefix(token, "0x")
		if len(token) > 8 {
			token = token[:8]
		}
		return token
	}
	addr := "0xmock" + suffix + short(token0) + short(token1)
	if len(addr) > 42 {
		addr = addr[:42]
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pools[addr]; !ok {
		a.pools[addr] = a.syntheticState(token0, token1, feeTier, a.basePrice)
	}
	return addr, true
}

// UpdatePoolPrice replaces poolAddr's synthetic state with one implying a new
// price, preserving its token pair and fee tier. It is a test seam: real
// adapters get a new price every block for free from the chain; the mock
// needs an explicit nudge to drive tier-transition scenarios across ticks.
func (a *MockAdapter) UpdatePoolPrice(poolAddr string, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(poolAddr)
	state, ok := a.pools[key]
	if !ok {
		return
	}
	a.pools[key] = a.syntheticState(state.Token0, state.Token1, state.FeeTier, price)
}

func (a *MockAdapter) syntheticState(token0, token1 string, feeTier *uint32, price float64) PoolState {
	state := PoolState{Token0: token0, Token1: token1, FeeTier: feeTier, BlockNumber: a.blockNumber}
	if feeTier != nil {
		// sqrtPriceX96 = sqrt(price) * 2^96, represented as a decimal string.
		state.SqrtPriceX96 = sqrtPriceX96ForPrice(price)
		state.Liquidity = "1000000000000000000000"
		return state
	}
	state.Reserve0 = "1000000000000000000000"
	state.Reserve1 = reserveForPrice(price)
	return state
}

// ReadPoolState returns the tracked synthetic state for poolAddr, or
// ErrPoolNotFound if ComputePoolAddress has never produced that address.
func (a *MockAdapter) ReadPoolState(_ context.Context, poolAddr string) (PoolState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.pools[poolAddr]
	if !ok {
		return PoolState{}, ErrPoolNotFound
	}
	state.BlockNumber = a.blockNumber
	return state, nil
}

// Aggregate answers each call with the tracked pool's state, ABI-encoded the
// same way the real V3 pool/V2 pair/Multicall3 contracts would encode it, so
// callers that decode via V3PoolABI/V2PairABI (the multicall engine) see the
// same wire shape a real eth_call would produce. The mock block number
// advances by one on every call.
func (a *MockAdapter) Aggregate(_ context.Context, calls []Call) (uint64, []AggregateResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blockNumber++

	results := make([]AggregateResult, len(calls))
	for i, c := range calls {
		state, ok := a.pools[strings.ToLower(c.Target)]
		if !ok {
			results[i] = AggregateResult{Success: false}
			continue
		}
		state.BlockNumber = a.blockNumber
		data, err := encodeMockCall(c.CallData, state)
		if err != nil {
			results[i] = AggregateResult{Success: false}
			continue
		}
		results[i] = AggregateResult{Success: true, ReturnData: data}
	}
	return a.blockNumber, results, nil
}

// sqrtPriceX96ForPrice encodes price as a Uniswap V3 sqrtPriceX96 value:
// sqrt(price) * 2^96, truncated to an integer.
func sqrtPriceX96ForPrice(price float64) string {
	sqrtPrice := math.Sqrt(price)
	scaled := new(big.Float).Mul(big.NewFloat(sqrtPrice), new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96)))
	out, _ := scaled.Int(nil)
	return out.String()
}

// reserveForPrice returns the reserve1 that implies reserve0=1e21 at price.
func reserveForPrice(price float64) string {
	reserve0 := big.NewFloat(1e21)
	reserve1 := new(big.Float).Mul(reserve0, big.NewFloat(price))
	out, _ := reserve1.Int(nil)
	return out.String()
}

// encodeMockCall dispatches on callData's 4-byte method selector and packs
// state's fields as that method's real ABI outputs.
func encodeMockCall(callData []byte, state PoolState) ([]byte, error) {
	if len(callData) < 4 {
		return nil, errors.New("chainadapter: mock callData too short")
	}
	selector := callData[:4]

	switch {
	case bytes.Equal(selector, V3PoolABI.Methods["slot0"].ID):
		sqrtPriceX96, ok := new(big.Int).SetString(state.SqrtPriceX96, 10)
		if !ok {
			return nil, errors.New("chainadapter: mock pool has no sqrtPriceX96")
		}
		return V3PoolABI.Methods["slot0"].Outputs.Pack(
			sqrtPriceX96, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)

	case bytes.Equal(selector, V3PoolABI.Methods["liquidity"].ID):
		liquidity, ok := new(big.Int).SetString(state.Liquidity, 10)
		if !ok {
			return nil, errors.New("chainadapter: mock pool has no liquidity")
		}
		return V3PoolABI.Methods["liquidity"].Outputs.Pack(liquidity)

	case bytes.Equal(selector, V2PairABI.Methods["getReserves"].ID):
		reserve0, ok0 := new(big.Int).SetString(state.Reserve0, 10)
		reserve1, ok1 := new(big.Int).SetString(state.Reserve1, 10)
		if !ok0 || !ok1 {
			return nil, errors.New("chainadapter: mock pool has no reserves")
		}
		return V2PairABI.Methods["getReserves"].Outputs.Pack(reserve0, reserve1, uint32(0))

	case bytes.Equal(selector, V3PoolABI.Methods["token0"].ID):
		return V3PoolABI.Methods["token0"].Outputs.Pack(common.HexToAddress(state.Token0))

	case bytes.Equal(selector, V3PoolABI.Methods["token1"].ID):
		return V3PoolABI.Methods["token1"].Outputs.Pack(common.HexToAddress(state.Token1))

	default:
		return nil, errors.New("chainadapter: mock unknown method selector")
	}
}
