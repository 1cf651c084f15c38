// Package poolstate is the sole writer of Pool rows: it applies
// Initialize, Swap and ModifyLiquidity events and derives token prices
// and TVL from them.
package poolstate

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/v4poolindex/indexer/internal/decimal"
)

// q96 is 2^96, the fixed-point denominator Uniswap V4 encodes sqrt
// prices in.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// tickMathPrecision is the big.Float mantissa precision used while
// computing 1.0001^tick. 300 bits comfortably covers the 160-bit range
// of sqrtPriceX96 with headroom for the fractional tick exponent.
const tickMathPrecision = 300

// SqrtRatioAtTick returns floor(sqrt(1.0001^tick) * 2^96), computed to
// tickMathPrecision bits and then truncated to an integer. Takes an
// int32 tick, matching the ABI-decoded event field width.
func SqrtRatioAtTick(tick int32) *big.Int {
	ratio := pow1_0001(tick, tickMathPrecision)
	sqrtRatio := new(big.Float).SetPrec(tickMathPrecision).Sqrt(ratio)
	q96f := new(big.Float).SetPrec(tickMathPrecision).SetInt(q96)
	scaled := new(big.Float).SetPrec(tickMathPrecision).Mul(sqrtRatio, q96f)
	result, _ := scaled.Int(nil)
	return result
}

// pow1_0001 computes 1.0001^tick via exponentiation by squaring so that
// large |tick| values (±887272, the V4 tick bound) stay exact within
// the float's mantissa instead of drifting through repeated math.Pow
// calls.
func pow1_0001(tick int32, prec uint) *big.Float {
	one := new(big.Float).SetPrec(prec).SetInt64(1)
	// 10001/10000 at full precision; a float64 literal would cap the
	// base at 53 significant bits.
	base := new(big.Float).SetPrec(prec).Quo(
		new(big.Float).SetPrec(prec).SetInt64(10001),
		new(big.Float).SetPrec(prec).SetInt64(10000),
	)

	neg := tick < 0
	e := tick
	if neg {
		e = -e
	}

	result := new(big.Float).SetPrec(prec).Set(one)
	b := new(big.Float).SetPrec(prec).Set(base)
	for e > 0 {
		if e&1 == 1 {
			result.Mul(result, b)
		}
		b.Mul(b, b)
		e >>= 1
	}
	if neg {
		result.Quo(one, result)
	}
	return result
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// SqrtPriceX96ToTokenPrices computes token0Price (token0 per token1)
// and token1Price (token1 per token0) from a raw sqrtPriceX96 and the
// two tokens' decimals:
//
//	numerator   = sqrtPriceX96^2 * 10^decimals0
//	denominator = 2^192 * 10^decimals1
//	token1Price = numerator / denominator
//	token0Price = 1 / token1Price
func SqrtPriceX96ToTokenPrices(sqrtPriceX96 *uint256.Int, decimals0, decimals1 uint8) (token0Price, token1Price decimal.Decimal) {
	p := sqrtPriceX96.ToBig()
	numerator := new(big.Int).Mul(p, p)
	numerator.Mul(numerator, pow10(decimals0))

	denominator := new(big.Int).Lsh(big.NewInt(1), 192)
	denominator.Mul(denominator, pow10(decimals1))

	if denominator.Sign() == 0 {
		return decimal.Zero(), decimal.Zero()
	}

	price1Rat := new(big.Rat).SetFrac(numerator, denominator)
	token1Price = decimal.FromRat(price1Rat)

	if price1Rat.Sign() == 0 {
		return decimal.Zero(), token1Price
	}
	price0Rat := new(big.Rat).Inv(price1Rat)
	token0Price = decimal.FromRat(price0Rat)
	return token0Price, token1Price
}

// ModifyLiquidityDeltas computes the signed token0/token1 amounts that
// enter (positive) or leave (negative) the pool for a ModifyLiquidity
// event. tick is the pool's current tick; tickLower/tickUpper bound
// the position; liquidityDelta carries both magnitude and sign of the
// position change. Which legs move depends on where the current price
// sits relative to the range.
func ModifyLiquidityDeltas(tick, tickLower, tickUpper int32, sqrtPriceX96 *uint256.Int, liquidityDelta *big.Int) (amount0, amount1 *big.Int) {
	if liquidityDelta == nil || liquidityDelta.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0)
	}

	sqrtPa := SqrtRatioAtTick(tickLower)
	sqrtPb := SqrtRatioAtTick(tickUpper)
	sqrtP := sqrtPriceX96.ToBig()
	liquidity := new(big.Int).Abs(liquidityDelta)

	var a0, a1 *big.Int
	switch {
	case tick < tickLower:
		// price below range: position is entirely token0
		a0 = amount0ForLiquidity(liquidity, sqrtPa, sqrtPb)
		a1 = big.NewInt(0)
	case tick < tickUpper:
		// price inside range: current price splits the two legs
		a0 = amount0ForLiquidity(liquidity, sqrtP, sqrtPb)
		a1 = amount1ForLiquidity(liquidity, sqrtPa, sqrtP)
	default:
		// price above range: position is entirely token1
		a0 = big.NewInt(0)
		a1 = amount1ForLiquidity(liquidity, sqrtPa, sqrtPb)
	}

	if liquidityDelta.Sign() < 0 {
		a0.Neg(a0)
		a1.Neg(a1)
	}
	return a0, a1
}

// amount0ForLiquidity = liquidity * 2^96 * (sqrtHigh - sqrtLow) / (sqrtLow * sqrtHigh)
func amount0ForLiquidity(liquidity, sqrtLow, sqrtHigh *big.Int) *big.Int {
	denominator := new(big.Int).Mul(sqrtLow, sqrtHigh)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(liquidity, q96)
	numerator.Mul(numerator, new(big.Int).Sub(sqrtHigh, sqrtLow))
	return numerator.Quo(numerator, denominator)
}

// amount1ForLiquidity = liquidity * (sqrtHigh - sqrtLow) / 2^96
func amount1ForLiquidity(liquidity, sqrtLow, sqrtHigh *big.Int) *big.Int {
	numerator := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtHigh, sqrtLow))
	return numerator.Quo(numerator, q96)
}
