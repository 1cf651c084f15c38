package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Reader is the boundary between the indexer and the pool manager
// contract: batched historical log fetch, live subscription,
// block-timestamp lookup and ERC-20 metadata reads.
type Reader interface {
	GetLogs(ctx context.Context, poolManager common.Address, fromBlock, toBlock uint64) ([]Log, error)
	SubscribeLogs(ctx context.Context, poolManager common.Address) (<-chan Log, <-chan error, error)
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
	ERC20Metadata(ctx context.Context, token common.Address) (Metadata, error)
}

// Metadata is the safe-default ERC-20 surface: a revert on any of the
// three calls never fails the pipeline.
type Metadata struct {
	Decimals uint8
	Symbol   string
	Name     string
}

// EthClient is the subset of ethclient.Client the reader depends on,
// narrowed so tests can supply a fake.
type EthClient interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthReader is the ethclient-backed Reader implementation. A
// token-bucket limiter paces getLogs, block-header and ERC-20 metadata
// calls so a fast backfill doesn't starve the node; GetBlockNumber and
// the live subscription are not paced.
type EthReader struct {
	client      EthClient
	limiter     *rate.Limiter
	decimals    *DecimalsCache
	callTimeout time.Duration
}

// NewEthReader builds a Reader over an ethclient-compatible client.
// ratePerSecond bounds outbound RPC calls (getLogs batches and ERC-20
// metadata reads share the limiter).
func NewEthReader(client EthClient, ratePerSecond float64) *EthReader {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	return &EthReader{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		decimals:    NewDecimalsCache(),
		callTimeout: 15 * time.Second,
	}
}

func toLog(l types.Log) Log {
	return Log{
		BlockNumber:     l.BlockNumber,
		LogIndex:        l.Index,
		TransactionHash: l.TxHash,
		Topics:          l.Topics,
		Data:            l.Data,
	}
}

// GetLogs fetches [fromBlock, toBlock] with the recognized-topics
// OR-filter and retries transient RPC errors with exponential backoff.
// After the retry budget is exhausted the error surfaces to the
// orchestrator, which stays on the failing window.
func (r *EthReader) GetLogs(ctx context.Context, poolManager common.Address, fromBlock, toBlock uint64) ([]Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{poolManager},
		Topics:    [][]common.Hash{RecognizedTopics},
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("chain: rate limiter wait: %w", err)
		}
		raw, err := r.client.FilterLogs(ctx, q)
		if err == nil {
			logs := make([]Log, 0, len(raw))
			for _, l := range raw {
				logs = append(logs, toLog(l))
			}
			return logs, nil
		}
		lastErr = err
		log.Printf("chain: getLogs(%d,%d) attempt %d/%d failed: %v", fromBlock, toBlock, attempt+1, maxAttempts, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("chain: getLogs(%d,%d) exhausted retries: %w", fromBlock, toBlock, lastErr)
}

// SubscribeLogs opens a live push stream. Logs arrive on the returned
// channel in the order the node delivers them; errors on the
// subscription's error channel are terminal for the stream.
func (r *EthReader) SubscribeLogs(ctx context.Context, poolManager common.Address) (<-chan Log, <-chan error, error) {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{poolManager},
		Topics:    [][]common.Hash{RecognizedTopics},
	}
	raw := make(chan types.Log)
	sub, err := r.client.SubscribeFilterLogs(ctx, q, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: subscribeLogs: %w", err)
	}

	out := make(chan Log, 256)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case err := <-sub.Err():
				errc <- fmt.Errorf("chain: log subscription error: %w", err)
				return
			case l := <-raw:
				out <- toLog(l)
			}
		}
	}()
	return out, errc, nil
}

// GetBlockTimestamp resolves a block's unix timestamp to a time.Time.
func (r *EthReader) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return time.Time{}, fmt.Errorf("chain: rate limiter wait: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	header, err := r.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("chain: header(%d): %w", blockNumber, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// GetBlockNumber returns the chain's current head block.
func (r *EthReader) GetBlockNumber(ctx context.Context) (uint64, error) {
	n, err := r.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: blockNumber: %w", err)
	}
	return n, nil
}

// DialEthReader dials an RPC endpoint and wraps it in an EthReader, so
// cmd/indexer never imports ethclient directly.
func DialEthReader(ctx context.Context, rpcURL string, ratePerSecond float64) (*EthReader, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return NewEthReader(c, ratePerSecond), nil
}
