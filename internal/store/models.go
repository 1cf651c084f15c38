// Package store holds the durable typed collections: Pool, SwapEvent,
// Token, the three Candle variants and SyncState. Big integers are
// stored as varchar decimal strings so uint160/uint128/int128 values
// survive the round trip exactly.
package store

import "time"

// PoolRecord is the gorm model for Pool. sqrtPriceX96, liquidity and
// the TVL fields are stored as decimal strings because they routinely
// exceed 64 bits or must stay exact and signed (TVL can go transiently
// negative when events arrive out of order).
type PoolRecord struct {
	ID                      uint      `gorm:"primaryKey;autoIncrement"`
	PoolID                  string    `gorm:"column:pool_id;type:varchar(66);uniqueIndex;not null;comment:32-byte poolId as 0x-hex"`
	Currency0               string    `gorm:"column:currency0;type:varchar(42);index;not null;comment:lowercase 20-byte address"`
	Currency1               string    `gorm:"column:currency1;type:varchar(42);index;not null;comment:lowercase 20-byte address"`
	Fee                     uint32    `gorm:"column:fee;not null"`
	TickSpacing             int32     `gorm:"column:tick_spacing;not null"`
	Hooks                   string    `gorm:"column:hooks;type:varchar(42);not null"`
	SqrtPriceX96            string    `gorm:"column:sqrt_price_x96;type:varchar(78);not null;comment:uint160 as string"`
	Tick                    int32     `gorm:"column:tick;not null"`
	Liquidity               string    `gorm:"column:liquidity;type:varchar(78);not null;comment:uint128 as string"`
	TotalValueLockedToken0  string    `gorm:"column:tvl_token0;type:varchar(80);not null;comment:signed big.Int as string"`
	TotalValueLockedToken1  string    `gorm:"column:tvl_token1;type:varchar(80);not null;comment:signed big.Int as string"`
	Token0Price             string    `gorm:"column:token0_price;type:varchar(64);not null"`
	Token1Price             string    `gorm:"column:token1_price;type:varchar(64);not null"`
	CreatedAtBlock          uint64    `gorm:"column:created_at_block;not null"`
	CreatedAtTimestamp      time.Time `gorm:"column:created_at_timestamp;not null"`
	CreatedAtTxHash         string    `gorm:"column:created_at_tx_hash;type:varchar(66);not null"`
	CreatedAt               time.Time `gorm:"autoCreateTime"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime"`
}

func (PoolRecord) TableName() string { return "pools" }

// SwapEventRecord is the gorm model for SwapEvent, keyed by the
// (transactionHash, logIndex) pair that makes every write idempotent.
type SwapEventRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	TransactionHash string    `gorm:"column:transaction_hash;type:varchar(66);not null;uniqueIndex:idx_swap_tx_log"`
	LogIndex        uint      `gorm:"column:log_index;not null;uniqueIndex:idx_swap_tx_log"`
	PoolID          string    `gorm:"column:pool_id;type:varchar(66);index:idx_swap_pool;not null"`
	Currency0       string    `gorm:"column:currency0;type:varchar(42);not null"`
	Currency1       string    `gorm:"column:currency1;type:varchar(42);not null"`
	Sender          string    `gorm:"column:sender;type:varchar(42);not null"`
	Amount0         string    `gorm:"column:amount0;type:varchar(80);not null;comment:signed int128 as string"`
	Amount1         string    `gorm:"column:amount1;type:varchar(80);not null;comment:signed int128 as string"`
	SqrtPriceX96    string    `gorm:"column:sqrt_price_x96;type:varchar(78);not null"`
	Liquidity       string    `gorm:"column:liquidity;type:varchar(78);not null"`
	Tick            int32     `gorm:"column:tick;not null"`
	Fee             uint32    `gorm:"column:fee;not null"`
	BlockNumber     uint64    `gorm:"column:block_number;not null"`
	BlockTimestamp  time.Time `gorm:"column:block_timestamp;index:idx_swap_block_ts;not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (SwapEventRecord) TableName() string { return "swap_events" }

// TokenRecord is the gorm model for Token. Cumulative counters are
// monotone; whitelistPools is stored as a JSON-encoded string set
// since gorm's portable column types don't include native arrays.
type TokenRecord struct {
	ID                     uint      `gorm:"primaryKey;autoIncrement"`
	Address                string    `gorm:"column:address;type:varchar(42);uniqueIndex;not null;comment:lowercase 20-byte address"`
	Decimals               uint8     `gorm:"column:decimals;not null"`
	Symbol                 string    `gorm:"column:symbol;type:varchar(64);not null"`
	Name                   string    `gorm:"column:name;type:varchar(128);not null"`
	Volume                 string    `gorm:"column:volume;type:varchar(80);not null;comment:non-negative big.Int as string"`
	VolumeUSD              string    `gorm:"column:volume_usd;type:varchar(64);not null"`
	UntrackedVolumeUSD     string    `gorm:"column:untracked_volume_usd;type:varchar(64);not null"`
	FeesUSD                string    `gorm:"column:fees_usd;type:varchar(64);not null"`
	TotalValueLocked       string    `gorm:"column:total_value_locked;type:varchar(80);not null"`
	TotalValueLockedUSD    string    `gorm:"column:total_value_locked_usd;type:varchar(64);not null"`
	DerivedBTC             string    `gorm:"column:derived_btc;type:varchar(64);not null;comment:price in reference wrapped-native unit"`
	TxCount                uint64    `gorm:"column:tx_count;not null"`
	WhitelistPoolsJSON     string    `gorm:"column:whitelist_pools_json;type:text;not null"`
	HasFetchedMetadata     bool      `gorm:"column:has_fetched_metadata;not null"`
	CreatedAt              time.Time `gorm:"autoCreateTime"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}

func (TokenRecord) TableName() string { return "tokens" }

// CandleStatus is the lifecycle state of a candle row: only current
// rows are mutable.
type CandleStatus string

const (
	CandleCurrent   CandleStatus = "current"
	CandleFinalized CandleStatus = "finalized"
)

// CandleFields factors the shape shared by the three interval tables
// so MinuteCandleRecord/HourCandleRecord/DayCandleRecord stay
// structurally identical and only differ by table name and bucket
// width.
type CandleFields struct {
	ID                  uint         `gorm:"primaryKey;autoIncrement"`
	TokenAddress        string       `gorm:"column:token_address;type:varchar(42);not null;uniqueIndex:idx_token_date"`
	Date                time.Time    `gorm:"column:date;not null;uniqueIndex:idx_token_date"`
	Status              CandleStatus `gorm:"column:status;type:varchar(16);not null"`
	Volume              string       `gorm:"column:volume;type:varchar(80);not null"`
	VolumeUSD           string       `gorm:"column:volume_usd;type:varchar(64);not null"`
	UntrackedVolumeUSD  string       `gorm:"column:untracked_volume_usd;type:varchar(64);not null"`
	TotalValueLocked    string       `gorm:"column:total_value_locked;type:varchar(80);not null"`
	TotalValueLockedUSD string       `gorm:"column:total_value_locked_usd;type:varchar(64);not null"`
	PriceUSD            string       `gorm:"column:price_usd;type:varchar(64);not null"`
	FeesUSD             string       `gorm:"column:fees_usd;type:varchar(64);not null"`
	Open                string       `gorm:"column:open;type:varchar(64);not null"`
	High                string       `gorm:"column:high;type:varchar(64);not null"`
	Low                 string       `gorm:"column:low;type:varchar(64);not null"`
	Close               string       `gorm:"column:close;type:varchar(64);not null"`
	TxCount             uint64       `gorm:"column:tx_count;not null"`
	CreatedAt           time.Time    `gorm:"autoCreateTime"`
	UpdatedAt           time.Time    `gorm:"autoUpdateTime"`
}

// MinuteCandleRecord is the per-minute Candle variant.
type MinuteCandleRecord struct {
	CandleFields
}

func (MinuteCandleRecord) TableName() string { return "minute_candles" }

// HourCandleRecord is the per-hour Candle variant.
type HourCandleRecord struct {
	CandleFields
}

func (HourCandleRecord) TableName() string { return "hour_candles" }

// DayCandleRecord is the per-day Candle variant.
type DayCandleRecord struct {
	CandleFields
}

func (DayCandleRecord) TableName() string { return "day_candles" }

// SyncStateRecord is the gorm model for SyncState, the orchestrator's
// crash-safe checkpoint.
type SyncStateRecord struct {
	ID                    uint      `gorm:"primaryKey;autoIncrement"`
	PoolManagerAddress    string    `gorm:"column:pool_manager_address;type:varchar(42);uniqueIndex;not null"`
	LastSyncedBlock       uint64    `gorm:"column:last_synced_block;not null"`
	CurrentBlock          uint64    `gorm:"column:current_block;not null"`
	IsInitialSyncComplete bool      `gorm:"column:is_initial_sync_complete;not null"`
	LastSyncedAt          time.Time `gorm:"column:last_synced_at;not null"`
	CreatedAt             time.Time `gorm:"autoCreateTime"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime"`
}

func (SyncStateRecord) TableName() string { return "sync_states" }
