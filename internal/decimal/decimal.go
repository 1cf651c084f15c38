// Package decimal implements a fixed-precision decimal type backed by
// math/big, used for every USD-denominated and human-readable price
// field in the indexer. On-chain amounts (wei, sqrtPriceX96, liquidity)
// never pass through here — they stay in integer/uint256 form until the
// last possible step.
package decimal

import (
	"fmt"
	"math/big"
)

// DefaultScale is the number of fractional digits kept for USD and
// derived-price quantities. 18 matches the widest ERC-20 decimals in
// the pool set, so no precision is lost converting token amounts.
const DefaultScale = 18

// Decimal is unscaled * 10^-scale, exact, never represented as a float
// until formatted for display.
type Decimal struct {
	unscaled *big.Int
	scale    uint8
}

// Zero returns the additive identity at DefaultScale.
func Zero() Decimal {
	return Decimal{unscaled: big.NewInt(0), scale: DefaultScale}
}

// New builds a Decimal from an integer numerator and explicit scale.
func New(unscaled *big.Int, scale uint8) Decimal {
	if unscaled == nil {
		unscaled = big.NewInt(0)
	}
	return Decimal{unscaled: new(big.Int).Set(unscaled), scale: scale}
}

// FromString parses a base-10 decimal string ("1234.5678") at DefaultScale.
func FromString(s string) (Decimal, error) {
	if s == "" {
		return Zero(), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Decimal{}, fmt.Errorf("decimal: invalid literal %q", s)
	}
	return fromRat(r, DefaultScale), nil
}

// FromRat converts an exact rational (e.g. the output of sqrtPriceX96
// decimal adjustment) into a Decimal at DefaultScale.
func FromRat(r *big.Rat) Decimal {
	return fromRat(r, DefaultScale)
}

// FromFraction builds a Decimal from an integer numerator/denominator
// pair (e.g. a fee tier expressed in millionths) without losing
// precision to an intermediate float.
func FromFraction(numerator, denominator int64) Decimal {
	if denominator == 0 {
		return Zero()
	}
	return fromRat(big.NewRat(numerator, denominator), DefaultScale)
}

// FromTokenAmount converts an integer token amount (e.g. wei) with the
// given ERC-20 decimals into a human-readable Decimal at DefaultScale.
func FromTokenAmount(amount *big.Int, tokenDecimals uint8) Decimal {
	if amount == nil {
		amount = big.NewInt(0)
	}
	r := new(big.Rat).SetInt(amount)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokenDecimals)), nil)
	r.Quo(r, new(big.Rat).SetInt(denom))
	return fromRat(r, DefaultScale)
}

func fromRat(r *big.Rat, scale uint8) Decimal {
	scaleFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scaleFactor))
	// round half away from zero
	num := scaled.Num()
	denom := scaled.Denom()
	q, rem := new(big.Int).QuoRem(num, denom, new(big.Int))
	rem2 := new(big.Int).Mul(rem, big.NewInt(2))
	rem2.Abs(rem2)
	if rem2.Cmp(denom) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return Decimal{unscaled: q, scale: scale}
}

func (d Decimal) rat() *big.Rat {
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.scale)), nil)
	return new(big.Rat).SetFrac(d.unscaled, denom)
}

// rescale returns both operands expressed at the larger of the two scales.
func rescale(a, b Decimal) (Decimal, Decimal) {
	scale := a.scale
	if b.scale > scale {
		scale = b.scale
	}
	return a.at(scale), b.at(scale)
}

func (d Decimal) at(scale uint8) Decimal {
	if d.scale == scale {
		return d
	}
	diff := int64(scale) - int64(d.scale)
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(absInt64(diff)), nil)
	u := new(big.Int).Set(d.unscaled)
	if diff > 0 {
		u.Mul(u, factor)
	} else {
		u.Quo(u, factor)
	}
	return Decimal{unscaled: u, scale: scale}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (d Decimal) Add(other Decimal) Decimal {
	a, b := rescale(d, other)
	return Decimal{unscaled: new(big.Int).Add(a.unscaled, b.unscaled), scale: a.scale}
}

func (d Decimal) Sub(other Decimal) Decimal {
	a, b := rescale(d, other)
	return Decimal{unscaled: new(big.Int).Sub(a.unscaled, b.unscaled), scale: a.scale}
}

func (d Decimal) Mul(other Decimal) Decimal {
	return fromRat(new(big.Rat).Mul(d.rat(), other.rat()), DefaultScale)
}

// Div returns d / other. Division by zero returns Zero() rather than
// panicking, matching the oracle's "missing pool returns 0" contract.
func (d Decimal) Div(other Decimal) Decimal {
	if other.IsZero() {
		return Zero()
	}
	return fromRat(new(big.Rat).Quo(d.rat(), other.rat()), DefaultScale)
}

func (d Decimal) Neg() Decimal {
	return Decimal{unscaled: new(big.Int).Neg(d.unscaled), scale: d.scale}
}

func (d Decimal) IsZero() bool {
	return d.unscaled == nil || d.unscaled.Sign() == 0
}

func (d Decimal) Sign() int {
	if d.unscaled == nil {
		return 0
	}
	return d.unscaled.Sign()
}

func (d Decimal) Cmp(other Decimal) int {
	a, b := rescale(d, other)
	return a.unscaled.Cmp(b.unscaled)
}

func (d Decimal) Max(other Decimal) Decimal {
	if d.Cmp(other) >= 0 {
		return d
	}
	return other
}

func (d Decimal) Min(other Decimal) Decimal {
	if d.Cmp(other) <= 0 {
		return d
	}
	return other
}

// String renders the decimal in plain base-10 notation, trimming
// trailing fractional zeros but always keeping at least one digit.
func (d Decimal) String() string {
	if d.unscaled == nil {
		return "0"
	}
	neg := d.unscaled.Sign() < 0
	abs := new(big.Int).Abs(d.unscaled)
	s := abs.String()
	scale := int(d.scale)
	for len(s) <= scale {
		s = "0" + s
	}
	intPart := s[:len(s)-scale]
	fracPart := s[len(s)-scale:]
	for len(fracPart) > 0 && fracPart[len(fracPart)-1] == '0' {
		fracPart = fracPart[:len(fracPart)-1]
	}
	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// Float64 is for logging/diagnostics only — never feed the result back
// into a stored field.
func (d Decimal) Float64() float64 {
	f, _ := d.rat().Float64()
	return f
}
