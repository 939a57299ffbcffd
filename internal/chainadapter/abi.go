package chainadapter

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for exactly the read methods the aggregator needs. Kept
// local rather than pulling in full contract bindings, packing and
// unpacking each method by hand against a narrowly scoped ABI.
const (
	v3PoolABIJSON = `[
		{"name":"slot0","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[
			{"name":"sqrtPriceX96","type":"uint160"},
			{"name":"tick","type":"int24"},
			{"name":"observationIndex","type":"uint16"},
			{"name":"observationCardinality","type":"uint16"},
			{"name":"observationCardinalityNext","type":"uint16"},
			{"name":"feeProtocol","type":"uint8"},
			{"name":"unlocked","type":"bool"}]},
		{"name":"liquidity","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"uint128"}]},
		{"name":"token0","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"address"}]},
		{"name":"token1","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"address"}]}
	]`

	v2PairABIJSON = `[
		{"name":"getReserves","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[
			{"name":"reserve0","type":"uint112"},
			{"name":"reserve1","type":"uint112"},
			{"name":"blockTimestampLast","type":"uint32"}]},
		{"name":"token0","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"address"}]},
		{"name":"token1","type":"function","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"address"}]}
	]`

	multicall3ABIJSON = `[
		{"name":"aggregate","type":"function","stateMutability":"payable",
		 "inputs":[{"name":"calls","type":"tuple[]","components":[
			{"name":"target","type":"address"},
			{"name":"callData","type":"bytes"}]}],
		 "outputs":[
			{"name":"blockNumber","type":"uint256"},
			{"name":"returnData","type":"bytes[]"}]},
		{"name":"tryAggregate","type":"function","stateMutability":"payable",
		 "inputs":[
			{"name":"requireSuccess","type":"bool"},
			{"name":"calls","type":"tuple[]","components":[
				{"name":"target","type":"address"},
				{"name":"callData","type":"bytes"}]}],
		 "outputs":[{"name":"returnData","type":"tuple[]","components":[
			{"name":"success","type":"bool"},
			{"name":"returnData","type":"bytes"}]}]}
	]`
)

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic("chainadapter: invalid embedded abi: " + err.Error())
	}
	return parsed
}

// V3PoolABI, V2PairABI, and Multicall3ABI are exported so the multicall
// engine can pack the same sub-calls the adapter itself would pack, without
// duplicating the ABI JSON.
var (
	V3PoolABI     = mustParseABI(v3PoolABIJSON)
	V2PairABI     = mustParseABI(v2PairABIJSON)
	Multicall3ABI = mustParseABI(multicall3ABIJSON)
)

// MulticallAddress is the canonical Multicall3 deployment address, identical
// across every EVM chain that has it deployed.
const MulticallAddress = "0xca11bde05977b3631167028862be2a173976ca11"
