package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/v4poolindex/indexer/internal/chain"
	"github.com/v4poolindex/indexer/internal/decimal"
	"github.com/v4poolindex/indexer/internal/store"
)

// Aggregator is the sole writer of Token and Candle rows. On each swap
// it performs an upsert+fold against the Token row and the three
// current-period Candle rows, lazily completing ERC-20 metadata and
// deriving reference-unit prices through an Oracle.
type Aggregator struct {
	store   *store.Store
	reader  chain.Reader
	cache   *chain.DecimalsCache
	oracle  *Oracle
	callTTL time.Duration
}

// New builds an Aggregator. reader is used for the lazy ERC-20
// metadata fetch.
func New(st *store.Store, reader chain.Reader, oracle *Oracle) *Aggregator {
	return &Aggregator{
		store:   st,
		reader:  reader,
		cache:   chain.NewDecimalsCache(),
		oracle:  oracle,
		callTTL: 15 * time.Second,
	}
}

// EnsureTokenDecimals implements poolstate.TokenLinker: it resolves a
// token's decimals, consulting the in-memory cache, then the database,
// then the chain, writing the result back through each layer.
func (a *Aggregator) EnsureTokenDecimals(address string) (uint8, error) {
	address = strings.ToLower(address)
	if d, ok := a.cache.Get(common.HexToAddress(address)); ok {
		return d, nil
	}

	rec, err := a.store.GetToken(address)
	if err != nil {
		return 0, err
	}
	if rec != nil && rec.HasFetchedMetadata {
		a.cache.Set(common.HexToAddress(address), rec.Decimals)
		return rec.Decimals, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.callTTL)
	defer cancel()
	meta, err := a.reader.ERC20Metadata(ctx, common.HexToAddress(address))
	if err != nil {
		// ERC20Metadata substitutes defaults instead of erroring; this
		// guards a misbehaving Reader implementation.
		meta = chain.Metadata{Decimals: chain.DefaultDecimals, Symbol: chain.DefaultSymbol, Name: chain.DefaultName}
	}

	if rec == nil {
		rec, err = a.store.UpsertDefaultToken(&store.TokenRecord{
			Address:            address,
			Decimals:           meta.Decimals,
			Symbol:             meta.Symbol,
			Name:               meta.Name,
			Volume:             "0",
			VolumeUSD:          "0",
			UntrackedVolumeUSD: "0",
			FeesUSD:            "0",
			TotalValueLocked:   "0",
			TotalValueLockedUSD: "0",
			DerivedBTC:         "0",
			WhitelistPoolsJSON: "[]",
		})
		if err != nil {
			return 0, err
		}
	}
	if err := a.store.PatchTokenMetadata(address, meta.Decimals, meta.Symbol, meta.Name); err != nil {
		return 0, err
	}
	a.cache.Set(common.HexToAddress(address), meta.Decimals)
	return meta.Decimals, nil
}

// LinkWhitelistPool implements poolstate.TokenLinker: ensure the token
// exists, then add poolID to its whitelistPools set. Single-writer
// event ordering makes the read-modify-write below race-free.
func (a *Aggregator) LinkWhitelistPool(tokenAddress, poolID string) error {
	tokenAddress = strings.ToLower(tokenAddress)
	rec, err := a.store.GetToken(tokenAddress)
	if err != nil {
		return err
	}
	if rec == nil {
		if _, err := a.EnsureTokenDecimals(tokenAddress); err != nil {
			return err
		}
		rec, err = a.store.GetToken(tokenAddress)
		if err != nil {
			return err
		}
	}

	ids := decodeWhitelistPools(rec.WhitelistPoolsJSON)
	for _, id := range ids {
		if id == poolID {
			return nil
		}
	}
	ids = append(ids, poolID)
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("aggregator: marshal whitelist pools for %s: %w", tokenAddress, err)
	}
	return a.store.SetTokenWhitelistPools(tokenAddress, string(encoded))
}

// OnSwap folds one SwapEvent into both tokens' cumulative stats and
// their three current candles.
func (a *Aggregator) OnSwap(pool *store.PoolRecord, swap *store.SwapEventRecord) error {
	amount0 := parseBig(swap.Amount0)
	amount1 := parseBig(swap.Amount1)

	if err := a.foldToken(pool.Currency0, amount0, swap.BlockTimestamp, swap.Fee); err != nil {
		return fmt.Errorf("aggregator: fold token0 %s: %w", pool.Currency0, err)
	}
	if err := a.foldToken(pool.Currency1, amount1, swap.BlockTimestamp, swap.Fee); err != nil {
		return fmt.Errorf("aggregator: fold token1 %s: %w", pool.Currency1, err)
	}
	return nil
}

func (a *Aggregator) foldToken(address string, amount *big.Int, blockTimestamp time.Time, fee uint32) error {
	decimals, err := a.EnsureTokenDecimals(address)
	if err != nil {
		return err
	}
	rec, err := a.store.GetToken(address)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("aggregator: token %s missing after EnsureTokenDecimals", address)
	}

	absAmount := new(big.Int).Abs(amount)
	newVolume := new(big.Int).Add(parseBig(rec.Volume), absAmount)

	derivedBTC := a.oracle.DerivedNativePerToken(rec)
	nativeUSD := a.oracle.NativePriceUSD()
	price := derivedBTC.Mul(nativeUSD)

	amountHuman := decimal.FromTokenAmount(absAmount, decimals)
	amountUSD := amountHuman.Mul(price)
	feesUSD := amountUSD.Mul(decimal.FromFraction(int64(fee), 1_000_000))

	newVolumeUSD, err := decimal.FromString(rec.VolumeUSD)
	if err != nil {
		newVolumeUSD = decimal.Zero()
	}
	newVolumeUSD = newVolumeUSD.Add(amountUSD)

	newFeesUSD, err := decimal.FromString(rec.FeesUSD)
	if err != nil {
		newFeesUSD = decimal.Zero()
	}
	newFeesUSD = newFeesUSD.Add(feesUSD)

	if err := a.store.UpdateTokenStats(address, newVolume.String(), newVolumeUSD.String(), newFeesUSD.String(), rec.TotalValueLocked, rec.TotalValueLockedUSD, derivedBTC.String(), 1); err != nil {
		return err
	}

	for _, interval := range []store.CandleInterval{store.IntervalMinute, store.IntervalHour, store.IntervalDay} {
		if err := a.foldCandle(interval, address, blockTimestamp, absAmount, amountUSD, feesUSD, price); err != nil {
			return err
		}
	}
	return nil
}

func truncateBucket(t time.Time, interval store.CandleInterval) time.Time {
	t = t.UTC()
	switch interval {
	case store.IntervalMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	case store.IntervalHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// foldCandle folds one swap's contribution into the current candle for
// interval. volume is kept in the same raw on-chain units as
// Token.volume so the candle and token rows agree on units;
// amountUSD/feesUSD/price are the human-scaled USD-derived fields.
func (a *Aggregator) foldCandle(interval store.CandleInterval, tokenAddress string, blockTimestamp time.Time, absAmount *big.Int, amountUSD, feesUSD, price decimal.Decimal) error {
	bucket := truncateBucket(blockTimestamp, interval)
	existing, err := a.store.GetCurrentCandle(interval, tokenAddress, bucket)
	if err != nil {
		return err
	}
	if existing == nil {
		fields := store.CandleFields{
			TokenAddress:        tokenAddress,
			Date:                bucket,
			Volume:              absAmount.String(),
			VolumeUSD:           amountUSD.String(),
			UntrackedVolumeUSD:  "0",
			TotalValueLocked:    "0",
			TotalValueLockedUSD: "0",
			PriceUSD:            price.String(),
			FeesUSD:             feesUSD.String(),
			Open:                price.String(),
			High:                price.String(),
			Low:                 price.String(),
			Close:               price.String(),
			TxCount:             1,
		}
		if err := a.store.CreateCurrentCandle(interval, fields); err != nil {
			// A duplicate here means the bucket's row was already
			// finalized; a late swap for a closed bucket is a no-op.
			if store.IsDuplicateKey(err) {
				log.Printf("aggregator: %s candle for %s@%s is finalized, dropping late update", interval, tokenAddress, bucket.Format(time.RFC3339))
				return nil
			}
			return err
		}
		return nil
	}

	newVolume := new(big.Int).Add(parseBig(existing.Volume), absAmount)

	newVolumeUSD, err := decimal.FromString(existing.VolumeUSD)
	if err != nil {
		newVolumeUSD = decimal.Zero()
	}
	newVolumeUSD = newVolumeUSD.Add(amountUSD)

	high, err := decimal.FromString(existing.High)
	if err != nil || high.IsZero() {
		high = price
	}
	high = high.Max(price)

	low, err := decimal.FromString(existing.Low)
	if err != nil || low.IsZero() {
		low = price
	} else {
		low = low.Min(price)
	}

	existingFeesUSD, err := decimal.FromString(existing.FeesUSD)
	if err != nil {
		existingFeesUSD = decimal.Zero()
	}
	existingFeesUSD = existingFeesUSD.Add(feesUSD)

	return a.store.FoldCurrentCandle(interval, tokenAddress, bucket, newVolume.String(), newVolumeUSD.String(), existingFeesUSD.String(), high.String(), low.String(), price.String(), 1)
}

// FinalizeBoundary promotes every current candle for the just-ended
// bucket of interval to finalized and returns the promoted rows, which
// the caller (the finalizer) publishes as candle.finalized events.
func (a *Aggregator) FinalizeBoundary(interval store.CandleInterval, endedBucket time.Time) ([]store.CandleFields, error) {
	rows, err := a.store.FinalizeCandles(interval, endedBucket)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		log.Printf("aggregator: finalized %d %s candle(s) for bucket %s", len(rows), interval, endedBucket.Format(time.RFC3339))
	}
	return rows, nil
}
