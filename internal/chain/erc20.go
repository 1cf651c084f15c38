package chain

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Safe defaults substituted when an ERC-20 metadata call reverts or
// the contract doesn't implement the optional field.
const (
	DefaultDecimals uint8  = 18
	DefaultSymbol   string = "UNKNOWN"
	DefaultName     string = "Unknown Token"
)

var (
	decimalsArgs = abi.Arguments{dataArg("decimals", mustType("uint8"))}
	stringArgs   = abi.Arguments{dataArg("value", mustType("string"))}
)

// selector is the first 4 bytes of keccak256(signature), the standard
// Solidity function selector.
func selector(sig string) []byte {
	h := crypto.Keccak256([]byte(sig))
	return h[:4]
}

// ERC20Metadata reads decimals/symbol/name via eth_call, substituting
// the safe defaults on any revert or decode failure. Never returns an
// error: a failed metadata fetch must never fail the pipeline.
func (r *EthReader) ERC20Metadata(ctx context.Context, token common.Address) (Metadata, error) {
	m := Metadata{Decimals: DefaultDecimals, Symbol: DefaultSymbol, Name: DefaultName}

	if d, err := r.callUint8(ctx, token, "decimals()"); err != nil {
		log.Printf("chain: decimals(%s) failed, defaulting to %d: %v", token.Hex(), DefaultDecimals, err)
	} else {
		m.Decimals = d
	}

	if s, err := r.callString(ctx, token, "symbol()"); err != nil {
		log.Printf("chain: symbol(%s) failed, defaulting to %q: %v", token.Hex(), DefaultSymbol, err)
	} else if s != "" {
		m.Symbol = s
	}

	if n, err := r.callString(ctx, token, "name()"); err != nil {
		log.Printf("chain: name(%s) failed, defaulting to %q: %v", token.Hex(), DefaultName, err)
	} else if n != "" {
		m.Name = n
	}

	return m, nil
}

func (r *EthReader) callUint8(ctx context.Context, token common.Address, sig string) (uint8, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: selector(sig)}, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: call %s on %s: %w", sig, token.Hex(), err)
	}
	values, err := decimalsArgs.Unpack(out)
	if err != nil {
		return 0, fmt.Errorf("chain: unpack %s result: %w", sig, err)
	}
	return values[0].(uint8), nil
}

func (r *EthReader) callString(ctx context.Context, token common.Address, sig string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: selector(sig)}, nil)
	if err != nil {
		return "", fmt.Errorf("chain: call %s on %s: %w", sig, token.Hex(), err)
	}
	values, err := stringArgs.Unpack(out)
	if err != nil {
		return "", fmt.Errorf("chain: unpack %s result: %w", sig, err)
	}
	return strings.TrimSpace(values[0].(string)), nil
}

// DecimalsCache is a thread-safe token-decimals mapping. On a miss the
// caller checks the database, then the chain, and writes the result
// back through Set. The cache only holds what's been resolved this
// process's lifetime; internal/store is the durable source of truth.
type DecimalsCache struct {
	mu sync.RWMutex
	m  map[common.Address]uint8
}

func NewDecimalsCache() *DecimalsCache {
	return &DecimalsCache{m: make(map[common.Address]uint8)}
}

func (c *DecimalsCache) Get(addr common.Address) (uint8, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.m[addr]
	return d, ok
}

func (c *DecimalsCache) Set(addr common.Address, decimals uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[addr] = decimals
}
