package poolstate

import (
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/v4poolindex/indexer/internal/chain"
	"github.com/v4poolindex/indexer/internal/store"
)

// TokenLinker is the aggregator's whitelist API, called after a new
// Pool is created when one of its currencies is a whitelisted
// reference token.
type TokenLinker interface {
	LinkWhitelistPool(tokenAddress, poolID string) error
	EnsureTokenDecimals(tokenAddress string) (uint8, error)
}

// Machine is the sole writer of Pool rows: it applies Initialize, Swap
// and ModifyLiquidity events and derives token prices and TVL from
// them.
type Machine struct {
	store     *store.Store
	linker    TokenLinker
	whitelist map[string]bool // lowercase addresses configured as reference tokens
}

// New builds a Machine. whitelistTokens are lowercase addresses; a
// newly Initialized pool whose currency0 or currency1 matches one of
// them links the OTHER currency into the Token Aggregator's whitelist set.
func New(st *store.Store, linker TokenLinker, whitelistTokens []string) *Machine {
	wl := make(map[string]bool, len(whitelistTokens))
	for _, t := range whitelistTokens {
		wl[strings.ToLower(t)] = true
	}
	return &Machine{store: st, linker: linker, whitelist: wl}
}

func hexID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func lower(addr string) string { return strings.ToLower(addr) }

// ApplyInitialize creates the Pool record for a decoded Initialize
// event. A duplicate Initialize (pool already exists) is dropped
// without error.
func (m *Machine) ApplyInitialize(ev chain.InitializeEvent, blockNumber uint64, blockTimestamp time.Time, txHash string) error {
	poolID := hexID(ev.PoolID)
	existing, err := m.store.GetPool(poolID)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("poolstate: duplicate Initialize for pool %s, dropping", poolID)
		return nil
	}

	decimals0, err := m.linker.EnsureTokenDecimals(lower(ev.Currency0.Hex()))
	if err != nil {
		return fmt.Errorf("poolstate: fetch decimals for currency0 %s: %w", ev.Currency0.Hex(), err)
	}
	decimals1, err := m.linker.EnsureTokenDecimals(lower(ev.Currency1.Hex()))
	if err != nil {
		return fmt.Errorf("poolstate: fetch decimals for currency1 %s: %w", ev.Currency1.Hex(), err)
	}

	token0Price, token1Price := SqrtPriceX96ToTokenPrices(ev.SqrtPriceX96, decimals0, decimals1)

	rec := &store.PoolRecord{
		PoolID:                 poolID,
		Currency0:              lower(ev.Currency0.Hex()),
		Currency1:              lower(ev.Currency1.Hex()),
		Fee:                    ev.Fee,
		TickSpacing:            ev.TickSpacing,
		Hooks:                  lower(ev.Hooks.Hex()),
		SqrtPriceX96:           ev.SqrtPriceX96.ToBig().String(),
		Tick:                   ev.Tick,
		Liquidity:              "0",
		TotalValueLockedToken0: "0",
		TotalValueLockedToken1: "0",
		Token0Price:            token0Price.String(),
		Token1Price:            token1Price.String(),
		CreatedAtBlock:         blockNumber,
		CreatedAtTimestamp:     blockTimestamp,
		CreatedAtTxHash:        txHash,
	}
	if err := m.store.CreatePool(rec); err != nil {
		if store.IsDuplicateKey(err) {
			log.Printf("poolstate: race on Initialize for pool %s, dropping", poolID)
			return nil
		}
		return err
	}

	if m.whitelist[rec.Currency0] {
		if err := m.linker.LinkWhitelistPool(rec.Currency1, poolID); err != nil {
			return fmt.Errorf("poolstate: link whitelist pool %s for %s: %w", poolID, rec.Currency1, err)
		}
	}
	if m.whitelist[rec.Currency1] {
		if err := m.linker.LinkWhitelistPool(rec.Currency0, poolID); err != nil {
			return fmt.Errorf("poolstate: link whitelist pool %s for %s: %w", poolID, rec.Currency0, err)
		}
	}
	return nil
}

// ApplySwap updates a pool's price/liquidity/TVL state and persists
// the SwapEvent row. Returns the updated pool and the inserted event;
// returns (nil, nil, nil) when the pool doesn't exist yet (a Swap that
// outran its Initialize, skipped with a warning) and on duplicate
// delivery.
func (m *Machine) ApplySwap(ev chain.SwapEvent, blockNumber uint64, blockTimestamp time.Time, txHash string, logIndex uint) (*store.PoolRecord, *store.SwapEventRecord, error) {
	poolID := hexID(ev.PoolID)
	pool, err := m.store.GetPool(poolID)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		log.Printf("poolstate: Swap for unknown pool %s, skipping", poolID)
		return nil, nil, nil
	}

	decimals0, err := m.linker.EnsureTokenDecimals(pool.Currency0)
	if err != nil {
		return nil, nil, fmt.Errorf("poolstate: decimals for %s: %w", pool.Currency0, err)
	}
	decimals1, err := m.linker.EnsureTokenDecimals(pool.Currency1)
	if err != nil {
		return nil, nil, fmt.Errorf("poolstate: decimals for %s: %w", pool.Currency1, err)
	}
	token0Price, token1Price := SqrtPriceX96ToTokenPrices(ev.SqrtPriceX96, decimals0, decimals1)

	tvl0 := addDecimalString(pool.TotalValueLockedToken0, ev.Amount0)
	tvl1 := addDecimalString(pool.TotalValueLockedToken1, ev.Amount1)

	if err := m.store.UpdatePoolState(poolID, ev.SqrtPriceX96.ToBig().String(), ev.Liquidity.ToBig().String(), tvl0, tvl1, token0Price.String(), token1Price.String(), ev.Tick); err != nil {
		return nil, nil, err
	}

	swapRec := &store.SwapEventRecord{
		TransactionHash: txHash,
		LogIndex:        logIndex,
		PoolID:          poolID,
		Currency0:       pool.Currency0,
		Currency1:       pool.Currency1,
		Sender:          lower(ev.Sender.Hex()),
		Amount0:         ev.Amount0.String(),
		Amount1:         ev.Amount1.String(),
		SqrtPriceX96:    ev.SqrtPriceX96.ToBig().String(),
		Liquidity:       ev.Liquidity.ToBig().String(),
		Tick:            ev.Tick,
		Fee:             ev.Fee,
		BlockNumber:     blockNumber,
		BlockTimestamp:  blockTimestamp,
	}
	if err := m.store.InsertSwapEvent(swapRec); err != nil {
		if store.IsDuplicateKey(err) {
			log.Printf("poolstate: duplicate swap %s:%d, swallowing", txHash, logIndex)
			return nil, nil, nil
		}
		return nil, nil, err
	}

	pool.SqrtPriceX96 = swapRec.SqrtPriceX96
	pool.Liquidity = swapRec.Liquidity
	pool.Tick = ev.Tick
	pool.TotalValueLockedToken0 = tvl0
	pool.TotalValueLockedToken1 = tvl1
	pool.Token0Price = token0Price.String()
	pool.Token1Price = token1Price.String()
	return pool, swapRec, nil
}

// ApplyModifyLiquidity updates a pool's liquidity and TVL by the
// concentrated-liquidity deltas for a position change.
func (m *Machine) ApplyModifyLiquidity(ev chain.ModifyLiquidityEvent) error {
	poolID := hexID(ev.PoolID)
	pool, err := m.store.GetPool(poolID)
	if err != nil {
		return err
	}
	if pool == nil {
		log.Printf("poolstate: ModifyLiquidity for unknown pool %s, skipping", poolID)
		return nil
	}

	sqrtPriceX96, ok := new(big.Int).SetString(pool.SqrtPriceX96, 10)
	if !ok {
		return fmt.Errorf("poolstate: corrupt sqrtPriceX96 %q for pool %s", pool.SqrtPriceX96, poolID)
	}
	sp, overflow := uint256.FromBig(sqrtPriceX96)
	if overflow {
		return fmt.Errorf("poolstate: sqrtPriceX96 overflow for pool %s", poolID)
	}

	amount0, amount1 := ModifyLiquidityDeltas(pool.Tick, ev.TickLower, ev.TickUpper, sp, ev.LiquidityDelta)

	liquidity, ok := new(big.Int).SetString(pool.Liquidity, 10)
	if !ok {
		liquidity = big.NewInt(0)
	}
	liquidity.Add(liquidity, ev.LiquidityDelta)
	if liquidity.Sign() < 0 {
		liquidity.SetInt64(0)
	}

	tvl0 := addDecimalString(pool.TotalValueLockedToken0, amount0)
	tvl1 := addDecimalString(pool.TotalValueLockedToken1, amount1)

	return m.store.UpdatePoolState(poolID, pool.SqrtPriceX96, liquidity.String(), tvl0, tvl1, pool.Token0Price, pool.Token1Price, pool.Tick)
}

// addDecimalString folds a signed big.Int delta into a decimal-string
// accumulator, the encoding the TVL columns use.
func addDecimalString(current string, delta *big.Int) string {
	cur, ok := new(big.Int).SetString(current, 10)
	if !ok {
		cur = big.NewInt(0)
	}
	cur.Add(cur, delta)
	return cur.String()
}
