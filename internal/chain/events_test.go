package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func packInitializeLog(t *testing.T, poolID [32]byte, currency0, currency1, hooks common.Address, fee uint32, tickSpacing int32, sqrtPriceX96 *big.Int, tick int32) Log {
	data, err := initializeData.Pack(big.NewInt(int64(fee)), big.NewInt(int64(tickSpacing)), hooks, sqrtPriceX96, big.NewInt(int64(tick)))
	assert.NoError(t, err)
	return Log{
		Topics: []common.Hash{
			TopicInitialize,
			poolID,
			common.BytesToHash(currency0.Bytes()),
			common.BytesToHash(currency1.Bytes()),
		},
		Data: data,
	}
}

func packSwapLog(t *testing.T, poolID [32]byte, sender common.Address, amount0, amount1 *big.Int, sqrtPriceX96, liquidity *big.Int, tick int32, fee uint32) Log {
	data, err := swapData.Pack(amount0, amount1, sqrtPriceX96, liquidity, big.NewInt(int64(tick)), big.NewInt(int64(fee)))
	assert.NoError(t, err)
	return Log{
		Topics: []common.Hash{TopicSwap, poolID, common.BytesToHash(sender.Bytes())},
		Data:   data,
	}
}

func packModifyLiquidityLog(t *testing.T, poolID [32]byte, sender common.Address, tickLower, tickUpper int32, liquidityDelta *big.Int, salt [32]byte) Log {
	data, err := modifyLiquidityData.Pack(big.NewInt(int64(tickLower)), big.NewInt(int64(tickUpper)), liquidityDelta, salt)
	assert.NoError(t, err)
	return Log{
		Topics: []common.Hash{TopicModifyLiquidity, poolID, common.BytesToHash(sender.Bytes())},
		Data:   data,
	}
}

func TestRecognizedTopicsAreDistinct(t *testing.T) {
	assert.NotEqual(t, TopicInitialize, TopicSwap)
	assert.NotEqual(t, TopicSwap, TopicModifyLiquidity)
	assert.NotEqual(t, TopicInitialize, TopicModifyLiquidity)
	assert.Len(t, RecognizedTopics, 3)
}

func TestKindOfUnrecognized(t *testing.T) {
	l := Log{Topics: []common.Hash{common.HexToHash("0xdeadbeef")}}
	assert.Equal(t, EventUnknown, KindOf(l))

	empty := Log{}
	assert.Equal(t, EventUnknown, KindOf(empty))
}

func TestDecodeInitializeRoundTrip(t *testing.T) {
	poolID := common.HexToHash("0xaa00000000000000000000000000000000000000000000000000000000aa")
	currency0 := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	currency1 := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	hooks := common.Address{}
	sqrtPriceX96, _ := new(big.Int).SetString("79228162514264337593543950336", 10)

	l := packInitializeLog(t, poolID, currency0, currency1, hooks, 3000, 60, sqrtPriceX96, 0)
	assert.Equal(t, EventInitialize, KindOf(l))

	ev, err := DecodeInitialize(l)
	assert.NoError(t, err)
	assert.Equal(t, poolID, common.Hash(ev.PoolID))
	assert.Equal(t, currency0, ev.Currency0)
	assert.Equal(t, currency1, ev.Currency1)
	assert.Equal(t, uint32(3000), ev.Fee)
	assert.Equal(t, int32(60), ev.TickSpacing)
	assert.Equal(t, sqrtPriceX96.String(), ev.SqrtPriceX96.ToBig().String())
	assert.Equal(t, int32(0), ev.Tick)
}

func TestDecodeSwapRoundTrip(t *testing.T) {
	poolID := common.HexToHash("0xaa00000000000000000000000000000000000000000000000000000000aa")
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount0 := big.NewInt(1_000_000_000_000_000_000)
	amount1 := big.NewInt(-2_000_000_000_000_000_000)
	sqrtPriceX96 := big.NewInt(79228162514264337)
	liquidity := big.NewInt(5_000_000_000_000_000_000)

	l := packSwapLog(t, poolID, sender, amount0, amount1, sqrtPriceX96, liquidity, 100, 3000)
	assert.Equal(t, EventSwap, KindOf(l))

	ev, err := DecodeSwap(l)
	assert.NoError(t, err)
	assert.Equal(t, poolID, common.Hash(ev.PoolID))
	assert.Equal(t, sender, ev.Sender)
	assert.Equal(t, amount0.String(), ev.Amount0.String())
	assert.Equal(t, amount1.String(), ev.Amount1.String())
	assert.Equal(t, int32(100), ev.Tick)
	assert.Equal(t, uint32(3000), ev.Fee)
}

func TestDecodeModifyLiquidityRoundTrip(t *testing.T) {
	poolID := common.HexToHash("0xaa00000000000000000000000000000000000000000000000000000000aa")
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	liquidityDelta := big.NewInt(1_000_000_000_000_000_000)
	var salt [32]byte
	salt[0] = 0x42

	l := packModifyLiquidityLog(t, poolID, sender, -60, 60, liquidityDelta, salt)
	assert.Equal(t, EventModifyLiquidity, KindOf(l))

	ev, err := DecodeModifyLiquidity(l)
	assert.NoError(t, err)
	assert.Equal(t, poolID, common.Hash(ev.PoolID))
	assert.Equal(t, sender, ev.Sender)
	assert.Equal(t, int32(-60), ev.TickLower)
	assert.Equal(t, int32(60), ev.TickUpper)
	assert.Equal(t, liquidityDelta.String(), ev.LiquidityDelta.String())
	assert.Equal(t, salt, ev.Salt)
}

func TestDecodeWrongKindFails(t *testing.T) {
	poolID := common.HexToHash("0xaa00000000000000000000000000000000000000000000000000000000aa")
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	l := packSwapLog(t, poolID, sender, big.NewInt(1), big.NewInt(-1), big.NewInt(1), big.NewInt(1), 0, 3000)

	_, err := DecodeInitialize(l)
	assert.Error(t, err)
	_, err = DecodeModifyLiquidity(l)
	assert.Error(t, err)
}

func TestDefaultMetadataConstants(t *testing.T) {
	assert.Equal(t, uint8(18), DefaultDecimals)
	assert.Equal(t, "UNKNOWN", DefaultSymbol)
	assert.Equal(t, "Unknown Token", DefaultName)
}

func TestDecimalsCacheWriteThrough(t *testing.T) {
	c := NewDecimalsCache()
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")

	_, ok := c.Get(addr)
	assert.False(t, ok)

	c.Set(addr, 6)
	d, ok := c.Get(addr)
	assert.True(t, ok)
	assert.Equal(t, uint8(6), d)
}
