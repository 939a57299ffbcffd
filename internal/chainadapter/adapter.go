// Package chainadapter defines the capability the rest of the aggregator
// needs from a chain: deterministic pool-address derivation, a single-pool
// state read, and a Multicall3 aggregate round-trip. One concrete EVM
// implementation and one deterministic mock satisfy the same interface.
package chainadapter

import (
	"context"
	"errors"
)

// ErrPoolNotFound is returned by ReadPoolState when the pool does not exist
// or has no initialized state.
var ErrPoolNotFound = errors.New("chainadapter: pool not found")

// ErrRPCError wraps a transport-level failure (timeout, connection refused,
// malformed response) talking to the chain's RPC endpoint.
var ErrRPCError = errors.New("chainadapter: rpc error")

// Call is a single read-only contract call destined for Multicall3.
type Call struct {
	Target   string
	CallData []byte
}

// PoolState is a single on-chain read of pool state.
type PoolState struct {
	Token0       string
	Token1       string
	FeeTier      *uint32 // V3 pools only; EVMAdapter.ReadPoolState leaves it nil
	SqrtPriceX96 string  // decimal string; empty for V2 pools
	Liquidity    string  // decimal string; empty for V2 pools
	Reserve0     string  // decimal string; empty for V3 pools
	Reserve1     string  // decimal string; empty for V3 pools
	BlockNumber  uint64
}

// AggregateResult is one Multicall3 sub-call's outcome.
type AggregateResult struct {
	Success    bool
	ReturnData []byte
}

// Adapter is the capability set the rest of the system needs from a chain.
type Adapter interface {
	ChainName() string
	ChainID() int

	// ComputePoolAddress deterministically derives the pool address for the
	// given token pair and (for V3) fee tier, without any RPC round trip.
	// feeTier is nil for a V2 derivation. ok is false if the inputs cannot
	// produce a valid address (e.g. identical tokens).
	ComputePoolAddress(tokenA, tokenB string, feeTier *uint32) (addr string, ok bool)

	// ReadPoolState performs a single direct read of a pool's state. Returns
	// ErrPoolNotFound if the pool has no code or is uninitialized, ErrRPCError
	// on transport failure.
	ReadPoolState(ctx context.Context, poolAddr string) (PoolState, error)

	// Aggregate dispatches one Multicall3 aggregate call and returns the
	// block number observed plus one AggregateResult per input call, in
	// input order. Partial sub-call failures surface as
	// AggregateResult{Success: false}; only transport-level failure of the
	// aggregate call itself returns a non-nil error.
	Aggregate(ctx context.Context, calls []Call) (blockNumber uint64, results []AggregateResult, err error)
}
