package chainadapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Canonical Uniswap init-code hashes, used for CREATE2 pool-address
// derivation. These are protocol constants, not per-deployment values.
var (
	uniswapV3InitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
	uniswapV2InitCodeHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

// EVMAdapter is the concrete Adapter backed by a live JSON-RPC endpoint.
type EVMAdapter struct {
	chainName string
	chainID   int
	client    *ethclient.Client
	v3Factory common.Address
	v2Factory common.Address
	multicall common.Address
	logger    *zap.Logger
}

var _ Adapter = (*EVMAdapter)(nil)

// NewEVMAdapter constructs an EVM chain adapter. v3Factory/v2Factory may be
// the zero address if that DEX variant is not used on this chain.
func NewEVMAdapter(chainName string, chainID int, client *ethclient.Client, v3Factory, v2Factory common.Address, logger *zap.Logger) *EVMAdapter {
	return &EVMAdapter{
		chainName: chainName,
		chainID:   chainID,
		client:    client,
		v3Factory: v3Factory,
		v2Factory: v2Factory,
		multicall: common.HexToAddress(MulticallAddress),
		logger:    logger,
	}
}

func (a *EVMAdapter) ChainName() string { return a.chainName }
func (a *EVMAdapter) ChainID() int      { return a.chainID }

// ComputePoolAddress derives a pool address via CREATE2 without any RPC
// round trip: CREATE2(factory, salt, initCodeHash).
func (a *EVMAdapter) ComputePoolAddress(tokenA, tokenB string, feeTier *uint32) (string, bool) {
	if strings.EqualFold(tokenA, tokenB) {
		return "", false
	}
	addrA, addrB := common.HexToAddress(tokenA), common.HexToAddress(tokenB)
	token0, token1 := addrA, addrB
	if strings.ToLower(addrA.Hex()) > strings.ToLower(addrB.Hex()) {
		token0, token1 = addrB, addrA
	}

	if feeTier != nil {
		if (a.v3Factory == common.Address{}) {
			return "", false
		}
		salt, err := v3Salt(token0, token1, *feeTier)
		if err != nil {
			return "", false
		}
		return create2(a.v3Factory, salt, uniswapV3InitCodeHash).Hex(), true
	}

	if (a.v2Factory == common.Address{}) {
		return "", false
	}
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return create2(a.v2Factory, salt, uniswapV2InitCodeHash).Hex(), true
}

func v3Salt(token0, token1 common.Address, fee uint32) (common.Hash, error) {
	addrTy, _ := abi.NewType("address", "", nil)
	uint24Ty, _ := abi.NewType("uint24", "", nil)
	args := abi.Arguments{{Type: addrTy}, {Type: addrTy}, {Type: uint24Ty}}
	packed, err := args.Pack(token0, token1, big.NewInt(int64(fee)))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

func create2(factory common.Address, salt, initCodeHash common.Hash) common.Address {
	data := append([]byte{0xff}, factory.Bytes()...)
	data = append(data, salt.Bytes()...)
	data = append(data, initCodeHash.Bytes()...)
	hash := crypto.Keccak256(data)
	return common.BytesToAddress(hash[12:])
}

// ReadPoolState performs a single direct read: try the V3 slot0 surface
// first, then fall back to the V2 getReserves surface. A pool that answers
// neither is reported as ErrPoolNotFound, transport failures included: this
// implementation does not return ErrRPCError. FeeTier is left nil.
func (a *EVMAdapter) ReadPoolState(ctx context.Context, poolAddr string) (PoolState, error) {
	addr := common.HexToAddress(poolAddr)

	if state, err := a.readV3(ctx, addr); err == nil {
		return state, nil
	}

	if state, err := a.readV2(ctx, addr); err == nil {
		return state, nil
	}

	return PoolState{}, ErrPoolNotFound
}

func (a *EVMAdapter) readV3(ctx context.Context, addr common.Address) (PoolState, error) {
	slot0Data, err := V3PoolABI.Pack("slot0")
	if err != nil {
		return PoolState{}, err
	}
	result, err := a.call(ctx, addr, slot0Data)
	if err != nil || len(result) == 0 {
		return PoolState{}, ErrPoolNotFound
	}
	out, err := V3PoolABI.Methods["slot0"].Outputs.UnpackValues(result)
	if err != nil {
		return PoolState{}, fmt.Errorf("chainadapter: decode slot0: %w", err)
	}
	sqrtPriceX96 := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	liquidity, err := a.callUint(ctx, addr, V3PoolABI, "liquidity")
	if err != nil {
		return PoolState{}, err
	}
	token0, err := a.callAddress(ctx, addr, V3PoolABI, "token0")
	if err != nil {
		return PoolState{}, err
	}
	token1, err := a.callAddress(ctx, addr, V3PoolABI, "token1")
	if err != nil {
		return PoolState{}, err
	}

	blockNumber, err := a.client.BlockNumber(ctx)
	if err != nil {
		return PoolState{}, fmt.Errorf("%w: %v", ErrRPCError, err)
	}

	return PoolState{
		Token0:       strings.ToLower(token0.Hex()),
		Token1:       strings.ToLower(token1.Hex()),
		SqrtPriceX96: sqrtPriceX96.String(),
		Liquidity:    liquidity.String(),
		BlockNumber:  blockNumber,
	}, nil
}

func (a *EVMAdapter) readV2(ctx context.Context, addr common.Address) (PoolState, error) {
	data, err := V2PairABI.Pack("getReserves")
	if err != nil {
		return PoolState{}, err
	}
	result, err := a.call(ctx, addr, data)
	if err != nil || len(result) == 0 {
		return PoolState{}, ErrPoolNotFound
	}
	out, err := V2PairABI.Methods["getReserves"].Outputs.UnpackValues(result)
	if err != nil {
		return PoolState{}, fmt.Errorf("chainadapter: decode getReserves: %w", err)
	}
	reserve0 := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	reserve1 := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)

	token0, err := a.callAddress(ctx, addr, V2PairABI, "token0")
	if err != nil {
		return PoolState{}, err
	}
	token1, err := a.callAddress(ctx, addr, V2PairABI, "token1")
	if err != nil {
		return PoolState{}, err
	}

	blockNumber, err := a.client.BlockNumber(ctx)
	if err != nil {
		return PoolState{}, fmt.Errorf("%w: %v", ErrRPCError, err)
	}

	return PoolState{
		Token0:      strings.ToLower(token0.Hex()),
		Token1:      strings.ToLower(token1.Hex()),
		Reserve0:    reserve0.String(),
		Reserve1:    reserve1.String(),
		BlockNumber: blockNumber,
	}, nil
}

func (a *EVMAdapter) callUint(ctx context.Context, addr common.Address, contractABI abi.ABI, method string) (*big.Int, error) {
	data, err := contractABI.Pack(method)
	if err != nil {
		return nil, err
	}
	result, err := a.call(ctx, addr, data)
	if err != nil {
		return nil, err
	}
	out, err := contractABI.Methods[method].Outputs.UnpackValues(result)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("chainadapter: decode %s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (a *EVMAdapter) callAddress(ctx context.Context, addr common.Address, contractABI abi.ABI, method string) (common.Address, error) {
	data, err := contractABI.Pack(method)
	if err != nil {
		return common.Address{}, err
	}
	result, err := a.call(ctx, addr, data)
	if err != nil {
		return common.Address{}, err
	}
	out, err := contractABI.Methods[method].Outputs.UnpackValues(result)
	if err != nil || len(out) == 0 {
		return common.Address{}, fmt.Errorf("chainadapter: decode %s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (a *EVMAdapter) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	result, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		a.logger.Debug("eth_call failed", zap.String("chain", a.chainName), zap.String("to", to.Hex()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRPCError, err)
	}
	return result, nil
}

// Aggregate issues one Multicall3 aggregate call covering all of calls.
func (a *EVMAdapter) Aggregate(ctx context.Context, calls []Call) (uint64, []AggregateResult, error) {
	if len(calls) == 0 {
		return 0, nil, nil
	}

	type multicall3Call struct {
		Target   common.Address
		CallData []byte
	}
	packedCalls := make([]multicall3Call, len(calls))
	for i, c := range calls {
		packedCalls[i] = multicall3Call{Target: common.HexToAddress(c.Target), CallData: c.CallData}
	}

	data, err := Multicall3ABI.Pack("tryAggregate", false, packedCalls)
	if err != nil {
		return 0, nil, fmt.Errorf("chainadapter: pack aggregate: %w", err)
	}

	result, err := a.call(ctx, a.multicall, data)
	if err != nil {
		return 0, nil, err
	}

	out, err := Multicall3ABI.Methods["tryAggregate"].Outputs.UnpackValues(result)
	if err != nil || len(out) == 0 {
		return 0, nil, fmt.Errorf("chainadapter: decode aggregate: %w", err)
	}

	rawResults, ok := out[0].([]struct {
		Success    bool
		ReturnData []byte
	})
	if !ok {
		return 0, nil, errors.New("chainadapter: unexpected aggregate result shape")
	}

	blockNumber, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrRPCError, err)
	}

	results := make([]AggregateResult, len(rawResults))
	for i, r := range rawResults {
		results[i] = AggregateResult{Success: r.Success, ReturnData: r.ReturnData}
	}
	return blockNumber, results, nil
}
