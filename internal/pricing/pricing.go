// Package pricing holds pure functions that derive spot prices and USD
// liquidity from raw on-chain pool state. Nothing here performs I/O.
package pricing

import (
	"math"
	"math/big"

	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// two96 is 2^96, the fixed-point base of Uniswap V3's sqrtPriceX96.
var two96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// PoolState is the minimal view of on-chain pool state pricing needs.
// ReserveN are used for V2 pools; SqrtPriceX96/Liquidity for V3.
type PoolState struct {
	DexType      types.DexType
	Token0       string
	Token1       string
	Decimals0    uint8
	Decimals1    uint8
	Reserve0     *big.Int
	Reserve1     *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// ComputeSpotPrice returns the price of targetToken denominated in
// quoteToken, derived from pool. targetToken and quoteToken must be the
// pool's token0/token1 (in either order), lowercase.
func ComputeSpotPrice(pool PoolState, targetToken, quoteToken string) float64 {
	switch pool.DexType {
	case types.DexV2:
		return computeSpotPriceV2(pool, targetToken, quoteToken)
	default:
		return computeSpotPriceV3(pool, targetToken, quoteToken)
	}
}

func computeSpotPriceV2(pool PoolState, targetToken, quoteToken string) float64 {
	if pool.Reserve0 == nil || pool.Reserve1 == nil || pool.Reserve0.Sign() == 0 {
		return 0
	}

	var reserveTarget, reserveQuote *big.Int
	var decTarget, decQuote uint8
	if targetToken == pool.Token0 {
		reserveTarget, reserveQuote = pool.Reserve0, pool.Reserve1
		decTarget, decQuote = pool.Decimals0, pool.Decimals1
	} else {
		reserveTarget, reserveQuote = pool.Reserve1, pool.Reserve0
		decTarget, decQuote = pool.Decimals1, pool.Decimals0
	}
	if reserveTarget.Sign() == 0 {
		return 0
	}

	price := new(big.Float).Quo(new(big.Float).SetInt(reserveQuote), new(big.Float).SetInt(reserveTarget))
	price.Mul(price, decimalAdjustment(decTarget, decQuote))
	f, _ := price.Float64()
	return f
}

func computeSpotPriceV3(pool PoolState, targetToken, quoteToken string) float64 {
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() == 0 {
		return 0
	}

	// P = (sqrtPriceX96 / 2^96)^2: price of token0 in units of token1.
	ratio := new(big.Float).Quo(new(big.Float).SetInt(pool.SqrtPriceX96), two96)
	p := new(big.Float).Mul(ratio, ratio)

	decTarget, decQuote := pool.Decimals0, pool.Decimals1
	if targetToken == pool.Token1 {
		// Invert: price of token1 in units of token0.
		if p.Sign() == 0 {
			return 0
		}
		p = new(big.Float).Quo(big.NewFloat(1), p)
		decTarget, decQuote = pool.Decimals1, pool.Decimals0
	}

	p.Mul(p, decimalAdjustment(decTarget, decQuote))
	f, _ := p.Float64()
	return f
}

// decimalAdjustment returns 10^(decimalsTarget - decimalsQuote).
func decimalAdjustment(decimalsTarget, decimalsQuote uint8) *big.Float {
	diff := int(decimalsTarget) - int(decimalsQuote)
	return big.NewFloat(math.Pow(10, float64(diff)))
}

// ComputeLiquidityUSD estimates the USD value of liquidity locked in pool,
// given USD prices for token0 and token1.
func ComputeLiquidityUSD(pool PoolState, price0USD, price1USD float64) float64 {
	switch pool.DexType {
	case types.DexV2:
		return computeLiquidityV2(pool, price0USD, price1USD)
	default:
		return computeLiquidityV3(pool, price0USD, price1USD)
	}
}

func computeLiquidityV2(pool PoolState, price0USD, price1USD float64) float64 {
	if pool.Reserve0 == nil || pool.Reserve1 == nil {
		return 0
	}
	r0 := scaledFloat(pool.Reserve0, pool.Decimals0)
	r1 := scaledFloat(pool.Reserve1, pool.Decimals1)
	return r0*price0USD + r1*price1USD
}

func computeLiquidityV3(pool PoolState, price0USD, price1USD float64) float64 {
	if pool.Liquidity == nil || pool.Liquidity.Sign() == 0 {
		return 0
	}
	// Order-of-magnitude approximation: liquidity * 2 * sqrt(price0USD * price1USD).
	liqFloat, _ := new(big.Float).SetInt(pool.Liquidity).Float64()
	if price0USD <= 0 || price1USD <= 0 {
		return 0
	}
	return liqFloat * 2 * math.Sqrt(price0USD*price1USD)
}

func scaledFloat(amount *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetFloat64(math.Pow(10, float64(decimals)))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}
