// Package aggregator is the sole writer of Token and Candle rows: it
// folds each swap into cumulative token stats and the three rolling
// candle intervals, and derives reference-unit prices via the
// whitelist-pool walk.
package aggregator

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/v4poolindex/indexer/internal/decimal"
	"github.com/v4poolindex/indexer/internal/store"
)

// one is the Decimal value 1, the identity reference price for the
// wrapped-native token itself.
var one = decimal.New(big.NewInt(1), 0)

// OracleConfig carries the configured reference-unit and stablecoin
// wiring the price oracle needs.
type OracleConfig struct {
	WrappedNativeAddress        string
	StablecoinWrappedNativePool string
	StablecoinIsToken0          bool
	StablecoinAddresses         map[string]bool
	MinimumNativeLocked         decimal.Decimal
}

// Oracle derives a token's price in the reference (wrapped-native)
// unit via whitelisted pools, pinning stablecoins to the configured
// stablecoin/native pool.
type Oracle struct {
	store  *store.Store
	config OracleConfig
}

func NewOracle(st *store.Store, cfg OracleConfig) *Oracle {
	return &Oracle{store: st, config: cfg}
}

// NativePriceUSD reads the configured stablecoin<->wrapped-native pool
// and returns the wrapped-native side's price in stablecoin units, or
// 0 if unconfigured or missing. With the stablecoin on the token0
// side, stablecoin-per-native is token0Price (token0 per token1).
func (o *Oracle) NativePriceUSD() decimal.Decimal {
	if o.config.StablecoinWrappedNativePool == "" {
		return decimal.Zero()
	}
	pool, err := o.store.GetPool(o.config.StablecoinWrappedNativePool)
	if err != nil || pool == nil {
		return decimal.Zero()
	}
	var priceStr string
	if o.config.StablecoinIsToken0 {
		priceStr = pool.Token0Price
	} else {
		priceStr = pool.Token1Price
	}
	price, err := decimal.FromString(priceStr)
	if err != nil {
		return decimal.Zero()
	}
	return price
}

func decodeWhitelistPools(jsonSet string) []string {
	if jsonSet == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(jsonSet), &ids); err != nil {
		return nil
	}
	return ids
}

// DerivedNativePerToken returns token's price expressed in the
// reference unit. The stored column keeps the historical derivedBTC
// name; the reference the math uses is the wrapped-native token.
func (o *Oracle) DerivedNativePerToken(token *store.TokenRecord) decimal.Decimal {
	addr := strings.ToLower(token.Address)
	if addr == strings.ToLower(o.config.WrappedNativeAddress) || addr == zeroAddress {
		return one
	}
	if o.config.StablecoinAddresses[addr] {
		nativeUSD := o.NativePriceUSD()
		if nativeUSD.IsZero() {
			return one
		}
		return one.Div(nativeUSD)
	}

	best := decimal.Zero()
	maxLocked := decimal.Zero()
	for _, poolID := range decodeWhitelistPools(token.WhitelistPoolsJSON) {
		pool, err := o.store.GetPool(poolID)
		if err != nil || pool == nil {
			continue
		}
		var otherAddr string
		var otherTVL string
		var tokenIsCurrency0 bool
		switch {
		case strings.EqualFold(pool.Currency0, addr):
			otherAddr, otherTVL, tokenIsCurrency0 = pool.Currency1, pool.TotalValueLockedToken1, true
		case strings.EqualFold(pool.Currency1, addr):
			otherAddr, otherTVL, tokenIsCurrency0 = pool.Currency0, pool.TotalValueLockedToken0, false
		default:
			continue
		}

		other, err := o.store.GetToken(otherAddr)
		if err != nil || other == nil {
			continue
		}
		otherDerived, err := decimal.FromString(other.DerivedBTC)
		if err != nil {
			otherDerived = decimal.Zero()
		}
		otherTVLDecimal := decimal.FromTokenAmount(parseBig(otherTVL), other.Decimals)
		nativeLocked := otherTVLDecimal.Mul(otherDerived)

		if nativeLocked.Cmp(maxLocked) <= 0 || nativeLocked.Cmp(o.config.MinimumNativeLocked) < 0 {
			continue
		}
		maxLocked = nativeLocked

		var tokenPriceInOther string
		if tokenIsCurrency0 {
			// token is currency0: its price expressed in currency1 (other) is token1Price
			tokenPriceInOther = pool.Token1Price
		} else {
			tokenPriceInOther = pool.Token0Price
		}
		priceDecimal, err := decimal.FromString(tokenPriceInOther)
		if err != nil {
			continue
		}
		best = priceDecimal.Mul(otherDerived)
	}
	return best
}

const zeroAddress = "0x0000000000000000000000000000000000000000"

// parseBig parses a decimal-string big integer, defaulting to 0 on
// malformed input (corrupt rows never propagate into oracle math).
func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
