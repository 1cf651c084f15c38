// Command indexer is the composition root: it wires the chain reader,
// store, pool state machine, token aggregator, price oracle, ingest
// orchestrator, periodic finalizer and event bus together and runs
// them until terminated.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/v4poolindex/indexer/internal/aggregator"
	"github.com/v4poolindex/indexer/internal/chain"
	"github.com/v4poolindex/indexer/internal/config"
	"github.com/v4poolindex/indexer/internal/decimal"
	"github.com/v4poolindex/indexer/internal/eventbus"
	"github.com/v4poolindex/indexer/internal/finalizer"
	"github.com/v4poolindex/indexer/internal/orchestrator"
	"github.com/v4poolindex/indexer/internal/poolstate"
	"github.com/v4poolindex/indexer/internal/store"
)

func main() {
	// .env is optional: in production RPC_URL/DB_DSN come from the
	// process environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("INDEXER_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("indexer: load config: %v", err)
	}

	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" {
		log.Fatal("indexer: RPC_URL not set")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("indexer: DB_DSN not set")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reader, err := chain.DialEthReader(ctx, rpcURL, cfg.RPCRateLimitPerSecond)
	if err != nil {
		log.Fatalf("indexer: dial chain reader: %v", err)
	}

	// Database unavailable is fatal: a supervisor restarts the process
	// and SyncState drives resume from the last commit.
	st, err := store.New(dsn)
	if err != nil {
		log.Fatalf("indexer: open store: %v", err)
	}

	minimumNativeLocked, err := decimal.FromString(cfg.MinimumNativeLocked)
	if err != nil {
		minimumNativeLocked = decimal.Zero()
	}
	oracle := aggregator.NewOracle(st, aggregator.OracleConfig{
		WrappedNativeAddress:        cfg.WrappedNativeAddress,
		StablecoinWrappedNativePool: cfg.StablecoinWrappedNativePoolID,
		StablecoinIsToken0:          cfg.StablecoinIsToken0,
		StablecoinAddresses:         cfg.StablecoinAddressSet(),
		MinimumNativeLocked:         minimumNativeLocked,
	})
	agg := aggregator.New(st, reader, oracle)
	machine := poolstate.New(st, agg, cfg.WhitelistTokens)
	bus := eventbus.New()

	orch := orchestrator.New(reader, machine, agg, st, bus, orchestrator.Config{
		PoolManagerAddress: cfg.PoolManagerAddress,
		SyncBatchSize:      cfg.SyncBatchSize,
		StartingBlock:      cfg.StartingBlock,
	})
	fin := finalizer.New(agg, bus)

	// Subscribers are registered before Run starts so no early
	// swap.created/candle.finalized event is missed; a query gateway
	// would register here the same way.
	swapCreated := bus.SubscribeSwapCreated()
	candleFinalized := bus.SubscribeCandleFinalized()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case swap, ok := <-swapCreated:
				if !ok {
					return
				}
				log.Printf("indexer: swap.created tx=%s pool=%s", swap.TransactionHash, swap.PoolID)
			case candle, ok := <-candleFinalized:
				if !ok {
					return
				}
				log.Printf("indexer: candle.finalized interval=%s token=%s", candle.Interval, candle.Candle.TokenAddress)
			}
		}
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- fmt.Errorf("orchestrator: %w", orch.Run(ctx)) }()
	go func() { errCh <- fmt.Errorf("finalizer: %w", fin.Run(ctx)) }()

	err = <-errCh
	if ctx.Err() != nil {
		log.Printf("indexer: shutting down: %v", err)
		return
	}
	log.Fatalf("indexer: fatal: %v", err)
}
