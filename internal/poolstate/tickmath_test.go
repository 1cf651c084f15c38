package poolstate

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

// sqrtPriceX96 = 2^96 encodes a 1:1 price; with matching decimals both
// derived prices come out as exactly "1".
func TestSqrtPriceX96ToTokenPrices_UnityPrice(t *testing.T) {
	sqrtPriceX96, ok := new(big.Int).SetString("79228162514264337593543950336", 10)
	assert.True(t, ok)
	sp, overflow := uint256.FromBig(sqrtPriceX96)
	assert.False(t, overflow)

	token0Price, token1Price := SqrtPriceX96ToTokenPrices(sp, 18, 18)
	assert.Equal(t, "1", token0Price.String())
	assert.Equal(t, "1", token1Price.String())
}

// token0Price * token1Price must stay ≈ 1 within rounding, across
// differing decimals and sqrt prices.
func TestSqrtPriceX96ToTokenPrices_ReciprocalInvariant(t *testing.T) {
	cases := []struct {
		sqrtPriceX96       string
		decimals0, decimals1 uint8
	}{
		{"79228162514264337593543950336", 18, 18},
		{"79228162514264337593543950336", 6, 18},
		{"158456325028528675187087900672", 18, 6},
		{"39614081257132168796771975168", 8, 18},
	}
	for _, c := range cases {
		raw, ok := new(big.Int).SetString(c.sqrtPriceX96, 10)
		assert.True(t, ok)
		sp, overflow := uint256.FromBig(raw)
		assert.False(t, overflow)

		p0, p1 := SqrtPriceX96ToTokenPrices(sp, c.decimals0, c.decimals1)
		product := p0.Mul(p1)
		f := product.Float64()
		assert.InDelta(t, 1.0, f, 1e-9, "decimals0=%d decimals1=%d", c.decimals0, c.decimals1)
	}
}

func TestSqrtRatioAtTickZero(t *testing.T) {
	r := SqrtRatioAtTick(0)
	assert.Equal(t, q96.String(), r.String())
}

func TestSqrtRatioAtTickSymmetry(t *testing.T) {
	pos := SqrtRatioAtTick(1000)
	neg := SqrtRatioAtTick(-1000)
	// sqrtRatio(-t) * sqrtRatio(t) should be close to q96^2 (1.0001^t * 1.0001^-t = 1)
	product := new(big.Int).Mul(pos, neg)
	q96sq := new(big.Int).Mul(q96, q96)
	diff := new(big.Int).Sub(product, q96sq)
	diff.Abs(diff)
	// allow small relative rounding error
	bound := new(big.Int).Div(q96sq, big.NewInt(1_000_000))
	assert.True(t, diff.Cmp(bound) < 0)
}

// tickLower=-60, tickUpper=60 with current tick=0 puts the price
// inside the range, so both token0 and token1 move.
func TestModifyLiquidityDeltas_InsideRange(t *testing.T) {
	sqrtP := SqrtRatioAtTick(0)
	sp, overflow := uint256.FromBig(sqrtP)
	assert.False(t, overflow)

	liquidityDelta := big.NewInt(1_000_000_000_000_000_000)
	amount0, amount1 := ModifyLiquidityDeltas(0, -60, 60, sp, liquidityDelta)

	assert.Equal(t, 1, amount0.Sign(), "amount0 should be positive (token0 enters the pool)")
	assert.Equal(t, 1, amount1.Sign(), "amount1 should be positive (token1 enters the pool)")
}

func TestModifyLiquidityDeltas_BelowRange(t *testing.T) {
	sqrtP := SqrtRatioAtTick(-1000)
	sp, overflow := uint256.FromBig(sqrtP)
	assert.False(t, overflow)

	liquidityDelta := big.NewInt(1_000_000_000_000_000_000)
	amount0, amount1 := ModifyLiquidityDeltas(-1000, -60, 60, sp, liquidityDelta)

	assert.Equal(t, 1, amount0.Sign(), "only token0 should move below the range")
	assert.Equal(t, 0, amount1.Sign())
}

func TestModifyLiquidityDeltas_AboveRange(t *testing.T) {
	sqrtP := SqrtRatioAtTick(1000)
	sp, overflow := uint256.FromBig(sqrtP)
	assert.False(t, overflow)

	liquidityDelta := big.NewInt(1_000_000_000_000_000_000)
	amount0, amount1 := ModifyLiquidityDeltas(1000, -60, 60, sp, liquidityDelta)

	assert.Equal(t, 0, amount0.Sign(), "only token1 should move above the range")
	assert.Equal(t, 1, amount1.Sign())
}

func TestModifyLiquidityDeltas_NegativeDeltaWithdraws(t *testing.T) {
	sqrtP := SqrtRatioAtTick(0)
	sp, overflow := uint256.FromBig(sqrtP)
	assert.False(t, overflow)

	liquidityDelta := big.NewInt(-1_000_000_000_000_000_000)
	amount0, amount1 := ModifyLiquidityDeltas(0, -60, 60, sp, liquidityDelta)

	assert.Equal(t, -1, amount0.Sign())
	assert.Equal(t, -1, amount1.Sign())
}

func TestModifyLiquidityDeltas_ZeroDelta(t *testing.T) {
	sqrtP := SqrtRatioAtTick(0)
	sp, overflow := uint256.FromBig(sqrtP)
	assert.False(t, overflow)

	amount0, amount1 := ModifyLiquidityDeltas(0, -60, 60, sp, big.NewInt(0))
	assert.Equal(t, "0", amount0.String())
	assert.Equal(t, "0", amount1.String())
}
