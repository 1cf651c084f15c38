// Package chain abstracts the Uniswap-V4-style pool manager contract:
// batched historical log fetch, live subscription, block-timestamp
// lookup and ERC-20 metadata reads.
package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Log is the subset of an on-chain log entry the pipeline needs,
// independent of the underlying RPC client implementation.
type Log struct {
	BlockNumber     uint64
	LogIndex        uint
	TransactionHash common.Hash
	Topics          []common.Hash
	Data            []byte
}

// EventKind identifies which of the three recognized pool manager
// events a decoded log carries.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventInitialize
	EventSwap
	EventModifyLiquidity
)

// InitializeEvent mirrors the PoolManager Initialize event.
type InitializeEvent struct {
	PoolID       [32]byte
	Currency0    common.Address
	Currency1    common.Address
	Fee          uint32
	TickSpacing  int32
	Hooks        common.Address
	SqrtPriceX96 *uint256.Int
	Tick         int32
}

// SwapEvent mirrors the PoolManager Swap event. Amount0/Amount1 are
// signed int128 values: positive means into the pool.
type SwapEvent struct {
	PoolID       [32]byte
	Sender       common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *uint256.Int
	Liquidity    *uint256.Int
	Tick         int32
	Fee          uint32
}

// ModifyLiquidityEvent mirrors the PoolManager ModifyLiquidity event.
type ModifyLiquidityEvent struct {
	PoolID         [32]byte
	Sender         common.Address
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
	Salt           [32]byte
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("chain: bad abi type %q: %v", t, err))
	}
	return typ
}

var (
	tyBytes32 = mustType("bytes32")
	tyAddress = mustType("address")
	tyUint24  = mustType("uint24")
	tyInt24   = mustType("int24")
	tyUint160 = mustType("uint160")
	tyUint128 = mustType("uint128")
	tyInt128  = mustType("int128")
	tyInt256  = mustType("int256")
)

func indexedArg(name string, t abi.Type) abi.Argument {
	return abi.Argument{Name: name, Type: t, Indexed: true}
}

func dataArg(name string, t abi.Type) abi.Argument {
	return abi.Argument{Name: name, Type: t, Indexed: false}
}

// Indexed arguments follow the contract's declarations: Initialize
// indexes id and both currencies, Swap and ModifyLiquidity index id
// and sender. Everything else travels in the log's data section and is
// unpacked with abi.Arguments.Unpack, the same path go-ethereum's
// abigen bindings use.
var (
	initializeIndexed = abi.Arguments{
		indexedArg("id", tyBytes32),
		indexedArg("currency0", tyAddress),
		indexedArg("currency1", tyAddress),
	}
	initializeData = abi.Arguments{
		dataArg("fee", tyUint24),
		dataArg("tickSpacing", tyInt24),
		dataArg("hooks", tyAddress),
		dataArg("sqrtPriceX96", tyUint160),
		dataArg("tick", tyInt24),
	}

	swapIndexed = abi.Arguments{indexedArg("id", tyBytes32), indexedArg("sender", tyAddress)}
	swapData    = abi.Arguments{
		dataArg("amount0", tyInt128),
		dataArg("amount1", tyInt128),
		dataArg("sqrtPriceX96", tyUint160),
		dataArg("liquidity", tyUint128),
		dataArg("tick", tyInt24),
		dataArg("fee", tyUint24),
	}

	modifyLiquidityIndexed = abi.Arguments{indexedArg("id", tyBytes32), indexedArg("sender", tyAddress)}
	modifyLiquidityData    = abi.Arguments{
		dataArg("tickLower", tyInt24),
		dataArg("tickUpper", tyInt24),
		dataArg("liquidityDelta", tyInt256),
		dataArg("salt", tyBytes32),
	}
)

func signature(name string, indexed, data abi.Arguments) string {
	all := append(append(abi.Arguments{}, indexed...), data...)
	s := name + "("
	for i, a := range all {
		if i > 0 {
			s += ","
		}
		s += a.Type.String()
	}
	return s + ")"
}

var (
	// TopicInitialize, TopicSwap and TopicModifyLiquidity are the
	// topic[0] values the reader ORs together in a single
	// getLogs/subscribeLogs filter, so historical ordering across
	// event kinds is preserved.
	TopicInitialize      = crypto.Keccak256Hash([]byte(signature("Initialize", initializeIndexed, initializeData)))
	TopicSwap            = crypto.Keccak256Hash([]byte(signature("Swap", swapIndexed, swapData)))
	TopicModifyLiquidity = crypto.Keccak256Hash([]byte(signature("ModifyLiquidity", modifyLiquidityIndexed, modifyLiquidityData)))
	RecognizedTopics     = []common.Hash{TopicInitialize, TopicSwap, TopicModifyLiquidity}
)

// KindOf returns which event a log's topic[0] identifies, or
// EventUnknown for anything else. An unrecognized log must never fail
// the pipeline.
func KindOf(l Log) EventKind {
	if len(l.Topics) == 0 {
		return EventUnknown
	}
	switch l.Topics[0] {
	case TopicInitialize:
		return EventInitialize
	case TopicSwap:
		return EventSwap
	case TopicModifyLiquidity:
		return EventModifyLiquidity
	default:
		return EventUnknown
	}
}

func asUint256(v *big.Int) (*uint256.Int, error) {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("chain: value %s overflows uint256", v.String())
	}
	return u, nil
}

// DecodeInitialize decodes a raw log into an InitializeEvent. A
// malformed log (wrong topic count, unpack failure) returns an error;
// the orchestrator logs it as a warning and skips the event.
func DecodeInitialize(l Log) (InitializeEvent, error) {
	if KindOf(l) != EventInitialize {
		return InitializeEvent{}, fmt.Errorf("chain: log is not Initialize")
	}
	if len(l.Topics) != 4 {
		return InitializeEvent{}, fmt.Errorf("chain: Initialize expects 4 topics, got %d", len(l.Topics))
	}

	var ev InitializeEvent
	ev.PoolID = l.Topics[1]
	ev.Currency0 = common.BytesToAddress(l.Topics[2].Bytes())
	ev.Currency1 = common.BytesToAddress(l.Topics[3].Bytes())

	values, err := initializeData.Unpack(l.Data)
	if err != nil {
		return InitializeEvent{}, fmt.Errorf("chain: unpack Initialize data: %w", err)
	}
	ev.Fee = uint32(values[0].(*big.Int).Uint64())
	ev.TickSpacing = int32(values[1].(*big.Int).Int64())
	ev.Hooks = values[2].(common.Address)
	sp, err := asUint256(values[3].(*big.Int))
	if err != nil {
		return InitializeEvent{}, err
	}
	ev.SqrtPriceX96 = sp
	ev.Tick = int32(values[4].(*big.Int).Int64())
	return ev, nil
}

// DecodeSwap decodes a raw log into a SwapEvent.
func DecodeSwap(l Log) (SwapEvent, error) {
	if KindOf(l) != EventSwap {
		return SwapEvent{}, fmt.Errorf("chain: log is not Swap")
	}
	if len(l.Topics) != 3 {
		return SwapEvent{}, fmt.Errorf("chain: Swap expects 3 topics, got %d", len(l.Topics))
	}

	var ev SwapEvent
	ev.PoolID = l.Topics[1]
	ev.Sender = common.BytesToAddress(l.Topics[2].Bytes())

	values, err := swapData.Unpack(l.Data)
	if err != nil {
		return SwapEvent{}, fmt.Errorf("chain: unpack Swap data: %w", err)
	}
	ev.Amount0 = values[0].(*big.Int)
	ev.Amount1 = values[1].(*big.Int)
	sp, err := asUint256(values[2].(*big.Int))
	if err != nil {
		return SwapEvent{}, err
	}
	ev.SqrtPriceX96 = sp
	liq, err := asUint256(values[3].(*big.Int))
	if err != nil {
		return SwapEvent{}, err
	}
	ev.Liquidity = liq
	ev.Tick = int32(values[4].(*big.Int).Int64())
	ev.Fee = uint32(values[5].(*big.Int).Uint64())
	return ev, nil
}

// DecodeModifyLiquidity decodes a raw log into a ModifyLiquidityEvent.
func DecodeModifyLiquidity(l Log) (ModifyLiquidityEvent, error) {
	if KindOf(l) != EventModifyLiquidity {
		return ModifyLiquidityEvent{}, fmt.Errorf("chain: log is not ModifyLiquidity")
	}
	if len(l.Topics) != 3 {
		return ModifyLiquidityEvent{}, fmt.Errorf("chain: ModifyLiquidity expects 3 topics, got %d", len(l.Topics))
	}

	var ev ModifyLiquidityEvent
	ev.PoolID = l.Topics[1]
	ev.Sender = common.BytesToAddress(l.Topics[2].Bytes())

	values, err := modifyLiquidityData.Unpack(l.Data)
	if err != nil {
		return ModifyLiquidityEvent{}, fmt.Errorf("chain: unpack ModifyLiquidity data: %w", err)
	}
	ev.TickLower = int32(values[0].(*big.Int).Int64())
	ev.TickUpper = int32(values[1].(*big.Int).Int64())
	ev.LiquidityDelta = values[2].(*big.Int)
	salt := values[3].([32]byte)
	ev.Salt = salt
	return ev, nil
}
