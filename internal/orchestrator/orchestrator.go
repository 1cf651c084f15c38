// Package orchestrator merges historical backfill and live
// subscription into a single strictly ordered event stream and drives
// the pool state machine and token aggregator from it.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/v4poolindex/indexer/internal/aggregator"
	"github.com/v4poolindex/indexer/internal/chain"
	"github.com/v4poolindex/indexer/internal/eventbus"
	"github.com/v4poolindex/indexer/internal/poolstate"
	"github.com/v4poolindex/indexer/internal/store"
)

// addressOf parses the configured pool manager address into the
// common.Address shape the Chain Reader's filter calls expect.
func addressOf(address string) common.Address {
	return common.HexToAddress(address)
}

// Orchestrator drives the single ordered event stream: backfill in
// fixed-size batches first, then live subscription through a
// single-consumer FIFO.
type Orchestrator struct {
	reader        chain.Reader
	machine       *poolstate.Machine
	aggregator    *aggregator.Aggregator
	store         *store.Store
	bus           *eventbus.Bus
	poolManager   string
	batchSize     uint32
	startingBlock uint64
}

// Config is the set of tunables the Orchestrator needs beyond its
// collaborators.
type Config struct {
	PoolManagerAddress string
	SyncBatchSize      uint32
	StartingBlock      uint64
}

func New(reader chain.Reader, machine *poolstate.Machine, agg *aggregator.Aggregator, st *store.Store, bus *eventbus.Bus, cfg Config) *Orchestrator {
	batch := cfg.SyncBatchSize
	if batch == 0 {
		batch = 1000
	}
	return &Orchestrator{
		reader:        reader,
		machine:       machine,
		aggregator:    agg,
		store:         st,
		bus:           bus,
		poolManager:   cfg.PoolManagerAddress,
		batchSize:     batch,
		startingBlock: cfg.StartingBlock,
	}
}

// Run drives backfill then live ingestion until ctx is cancelled.
// Cancellation drains the in-flight event, commits SyncState, and
// returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	live := make(chan chain.Log, 4096)
	liveErrs := make(chan error, 1)

	g.Go(func() error {
		return o.runBackfill(gctx, live, liveErrs)
	})
	g.Go(func() error {
		return o.drainLive(gctx, live, liveErrs)
	})

	return g.Wait()
}

// runBackfill catches up from lastSyncedBlock+1 to the chain head in
// fixed batches, then opens the live subscription and forwards it onto
// the same channel the consumer drains. Live logs are buffered, never
// dropped; the unique swap index deduplicates any overlap between the
// tail of backfill and the start of the live feed.
func (o *Orchestrator) runBackfill(ctx context.Context, out chan<- chain.Log, liveErrs chan<- error) error {
	state, err := o.store.GetSyncState(o.poolManager)
	if err != nil {
		return fmt.Errorf("orchestrator: load sync state: %w", err)
	}

	from := state.LastSyncedBlock + 1
	if o.startingBlock > from {
		from = o.startingBlock
	}

	head, err := o.reader.GetBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: get block number: %w", err)
	}

	for from <= head {
		to := from + uint64(o.batchSize) - 1
		if to > head {
			to = head
		}

		logs, err := o.reader.GetLogs(ctx, addressOf(o.poolManager), from, to)
		if err != nil {
			return fmt.Errorf("orchestrator: backfill getLogs(%d,%d): %w", from, to, err)
		}

		for _, l := range logs {
			if err := o.dispatch(ctx, l); err != nil {
				log.Printf("orchestrator: skipping log tx=%s idx=%d: %v", l.TransactionHash.Hex(), l.LogIndex, err)
			}
		}

		now := time.Now().UTC()
		initialSyncComplete := to >= head
		if err := o.store.CommitSyncState(o.poolManager, to, head, initialSyncComplete, now); err != nil {
			return fmt.Errorf("orchestrator: commit sync state: %w", err)
		}

		from = to + 1
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// re-check head periodically so a long backfill still catches
		// up to a moving target
		if from > head {
			newHead, err := o.reader.GetBlockNumber(ctx)
			if err == nil && newHead > head {
				head = newHead
			}
		}
	}

	logCh, errCh, err := o.reader.SubscribeLogs(ctx, addressOf(o.poolManager))
	if err != nil {
		return fmt.Errorf("orchestrator: subscribeLogs: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			liveErrs <- err
			return err
		case l, ok := <-logCh:
			if !ok {
				return nil
			}
			select {
			case out <- l:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// drainLive is the single consumer draining the live FIFO one entry at
// a time. No parallelism across events: each runs to completion before
// the next is dequeued.
func (o *Orchestrator) drainLive(ctx context.Context, in <-chan chain.Log, liveErrs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-liveErrs:
			return err
		case l := <-in:
			if err := o.dispatch(ctx, l); err != nil {
				log.Printf("orchestrator: skipping live log tx=%s idx=%d: %v", l.TransactionHash.Hex(), l.LogIndex, err)
			}
			head, err := o.reader.GetBlockNumber(ctx)
			if err == nil {
				now := time.Now().UTC()
				if err := o.store.CommitSyncState(o.poolManager, l.BlockNumber, head, true, now); err != nil {
					log.Printf("orchestrator: commit sync state after live log: %v", err)
				}
			}
		}
	}
}

// dispatch decodes and applies one log, routing to the pool state
// machine and, for swaps, the token aggregator. Missing-pool skips and
// duplicate-key swallows are not errors to the caller; anything else
// is logged and skipped upstream — the orchestrator never halts on a
// single bad event.
func (o *Orchestrator) dispatch(ctx context.Context, l chain.Log) error {
	timestamp, err := o.reader.GetBlockTimestamp(ctx, l.BlockNumber)
	if err != nil {
		return fmt.Errorf("get block timestamp: %w", err)
	}
	txHash := l.TransactionHash.Hex()

	switch chain.KindOf(l) {
	case chain.EventInitialize:
		ev, err := chain.DecodeInitialize(l)
		if err != nil {
			return fmt.Errorf("decode Initialize: %w", err)
		}
		return o.machine.ApplyInitialize(ev, l.BlockNumber, timestamp, txHash)

	case chain.EventSwap:
		ev, err := chain.DecodeSwap(l)
		if err != nil {
			return fmt.Errorf("decode Swap: %w", err)
		}
		pool, swapRec, err := o.machine.ApplySwap(ev, l.BlockNumber, timestamp, txHash, l.LogIndex)
		if err != nil {
			return fmt.Errorf("apply Swap: %w", err)
		}
		if pool == nil || swapRec == nil {
			return nil
		}
		if err := o.aggregator.OnSwap(pool, swapRec); err != nil {
			return fmt.Errorf("aggregate Swap: %w", err)
		}
		o.bus.PublishSwapCreated(swapRec)
		return nil

	case chain.EventModifyLiquidity:
		ev, err := chain.DecodeModifyLiquidity(l)
		if err != nil {
			return fmt.Errorf("decode ModifyLiquidity: %w", err)
		}
		return o.machine.ApplyModifyLiquidity(ev)

	default:
		return fmt.Errorf("unrecognized log topic %s", firstTopic(l))
	}
}

func firstTopic(l chain.Log) string {
	if len(l.Topics) == 0 {
		return "<none>"
	}
	return l.Topics[0].Hex()
}
