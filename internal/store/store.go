package store

import (
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the gorm-backed persistence layer. It owns schema
// migration and the atomic upsert/find-and-modify primitives every
// other component calls; no package outside store issues a raw gorm
// query against these tables.
type Store struct {
	db *gorm.DB
}

// New opens a MySQL connection and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect to MySQL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already-open gorm.DB and migrates the schema.
func NewWithDB(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewForTest wires a Store over an already-open gorm.DB without
// running AutoMigrate, for sqlmock-backed tests in other packages
// (aggregator, orchestrator) that expect only the exact queries their
// collaborators issue.
func NewForTest(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(
		&PoolRecord{},
		&SwapEventRecord{},
		&TokenRecord{},
		&MinuteCandleRecord{},
		&HourCandleRecord{},
		&DayCandleRecord{},
		&SyncStateRecord{},
	); err != nil {
		return fmt.Errorf("store: migrate schema: %w", err)
	}
	return nil
}

// IsDuplicateKey reports whether err is a unique-index violation, the
// expected deduplication mechanism for replayed events.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// --- Pool ---------------------------------------------------------

// GetPool looks up a pool by its 32-byte hex poolId. Returns
// (nil, nil) if no row exists yet, so callers can skip a Swap or
// ModifyLiquidity that arrived before its Initialize.
func (s *Store) GetPool(poolID string) (*PoolRecord, error) {
	var rec PoolRecord
	err := s.db.Where("pool_id = ?", poolID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get pool %s: %w", poolID, err)
	}
	return &rec, nil
}

// CreatePool inserts a new Pool row. Returns IsDuplicateKey(err)==true
// if the pool already exists; the caller checks GetPool first and only
// reaches that case on the window between the check and the insert.
func (s *Store) CreatePool(rec *PoolRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("store: create pool %s: %w", rec.PoolID, err)
	}
	return nil
}

// UpdatePoolState persists the post-Swap or post-ModifyLiquidity pool
// fields in a single update.
func (s *Store) UpdatePoolState(poolID string, sqrtPriceX96, liquidity, tvl0, tvl1, token0Price, token1Price string, tick int32) error {
	res := s.db.Model(&PoolRecord{}).Where("pool_id = ?", poolID).Updates(map[string]interface{}{
		"sqrt_price_x96": sqrtPriceX96,
		"liquidity":      liquidity,
		"tvl_token0":     tvl0,
		"tvl_token1":     tvl1,
		"token0_price":   token0Price,
		"token1_price":   token1Price,
		"tick":           tick,
	})
	if res.Error != nil {
		return fmt.Errorf("store: update pool %s: %w", poolID, res.Error)
	}
	return nil
}

// --- SwapEvent ------------------------------------------------------

// InsertSwapEvent writes a SwapEvent. Callers must treat
// IsDuplicateKey(err) as success.
func (s *Store) InsertSwapEvent(rec *SwapEventRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("store: insert swap event %s:%d: %w", rec.TransactionHash, rec.LogIndex, err)
	}
	return nil
}

// --- Token ----------------------------------------------------------

// GetToken looks up a token by lowercase address.
func (s *Store) GetToken(address string) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.db.Where("address = ?", address).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get token %s: %w", address, err)
	}
	return &rec, nil
}

// UpsertDefaultToken creates a Token row with default metadata if
// absent, or is a no-op if it already exists. Both the swap fold and
// the whitelist link path go through this.
func (s *Store) UpsertDefaultToken(rec *TokenRecord) (*TokenRecord, error) {
	existing, err := s.GetToken(rec.Address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if err := s.db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "address"}}, DoNothing: true}).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("store: upsert default token %s: %w", rec.Address, err)
	}
	return s.GetToken(rec.Address)
}

// UpdateTokenStats applies the cumulative-stats fold in a single
// update.
func (s *Store) UpdateTokenStats(address, volume, volumeUSD, feesUSD, tvl, tvlUSD, derivedBTC string, txCountDelta uint64) error {
	res := s.db.Model(&TokenRecord{}).Where("address = ?", address).Updates(map[string]interface{}{
		"volume":                 volume,
		"volume_usd":             volumeUSD,
		"fees_usd":               feesUSD,
		"total_value_locked":     tvl,
		"total_value_locked_usd": tvlUSD,
		"derived_btc":            derivedBTC,
		"tx_count":               gorm.Expr("tx_count + ?", txCountDelta),
	})
	if res.Error != nil {
		return fmt.Errorf("store: update token stats %s: %w", address, res.Error)
	}
	return nil
}

// PatchTokenMetadata fills in ERC-20 metadata once it's been fetched,
// only if the row still holds defaults.
func (s *Store) PatchTokenMetadata(address string, decimals uint8, symbol, name string) error {
	res := s.db.Model(&TokenRecord{}).Where("address = ? AND has_fetched_metadata = ?", address, false).Updates(map[string]interface{}{
		"decimals":             decimals,
		"symbol":               symbol,
		"name":                 name,
		"has_fetched_metadata": true,
	})
	if res.Error != nil {
		return fmt.Errorf("store: patch token metadata %s: %w", address, res.Error)
	}
	return nil
}

// SetTokenWhitelistPools overwrites a token's whitelistPools set.
func (s *Store) SetTokenWhitelistPools(address, whitelistPoolsJSON string) error {
	res := s.db.Model(&TokenRecord{}).Where("address = ?", address).Update("whitelist_pools_json", whitelistPoolsJSON)
	if res.Error != nil {
		return fmt.Errorf("store: set whitelist pools for %s: %w", address, res.Error)
	}
	return nil
}

// --- Candles ----------------------------------------------------------

// CandleInterval selects which of the three tables a candle operation
// targets.
type CandleInterval string

const (
	IntervalMinute CandleInterval = "minute"
	IntervalHour   CandleInterval = "hour"
	IntervalDay    CandleInterval = "day"
)

func (s *Store) table(interval CandleInterval) interface{} {
	switch interval {
	case IntervalMinute:
		return &MinuteCandleRecord{}
	case IntervalHour:
		return &HourCandleRecord{}
	default:
		return &DayCandleRecord{}
	}
}

// GetCurrentCandle finds the unique (tokenAddress, bucket, current)
// row for the given interval. Returns (nil, nil) if absent.
func (s *Store) GetCurrentCandle(interval CandleInterval, tokenAddress string, bucket time.Time) (*CandleFields, error) {
	var fields CandleFields
	dest := s.table(interval)
	err := s.db.Model(dest).
		Where("token_address = ? AND date = ? AND status = ?", tokenAddress, bucket, CandleCurrent).
		Scan(&fields).Error
	if err != nil {
		return nil, fmt.Errorf("store: get current %s candle for %s: %w", interval, tokenAddress, err)
	}
	if fields.TokenAddress == "" {
		return nil, nil
	}
	return &fields, nil
}

// CreateCurrentCandle inserts a fresh current-status candle row.
func (s *Store) CreateCurrentCandle(interval CandleInterval, fields CandleFields) error {
	fields.Status = CandleCurrent
	var err error
	switch interval {
	case IntervalMinute:
		err = s.db.Create(&MinuteCandleRecord{CandleFields: fields}).Error
	case IntervalHour:
		err = s.db.Create(&HourCandleRecord{CandleFields: fields}).Error
	default:
		err = s.db.Create(&DayCandleRecord{CandleFields: fields}).Error
	}
	if err != nil {
		return fmt.Errorf("store: create %s candle for %s@%s: %w", interval, fields.TokenAddress, fields.Date, err)
	}
	return nil
}

// FoldCurrentCandle applies one swap's contribution to the existing
// current candle in a single update.
func (s *Store) FoldCurrentCandle(interval CandleInterval, tokenAddress string, bucket time.Time, volume, volumeUSD, feesUSD, high, low, close string, txCountDelta uint64) error {
	res := s.db.Model(s.table(interval)).
		Where("token_address = ? AND date = ? AND status = ?", tokenAddress, bucket, CandleCurrent).
		Updates(map[string]interface{}{
			"volume":     volume,
			"volume_usd": volumeUSD,
			"fees_usd":   feesUSD,
			"high":       high,
			"low":        low,
			"close":      close,
			"tx_count":   gorm.Expr("tx_count + ?", txCountDelta),
		})
	if res.Error != nil {
		return fmt.Errorf("store: fold %s candle for %s@%s: %w", interval, tokenAddress, bucket, res.Error)
	}
	return nil
}

// FinalizeCandles flips every current-status row for bucket to
// finalized in one write and returns the rows that were promoted, so
// the caller can publish one candle.finalized event per row. An
// already-finalized row is not matched by the WHERE clause, making
// re-finalization a safe no-op.
func (s *Store) FinalizeCandles(interval CandleInterval, bucket time.Time) ([]CandleFields, error) {
	var rows []CandleFields
	dest := s.table(interval)
	if err := s.db.Model(dest).Where("date = ? AND status = ?", bucket, CandleCurrent).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: scan %s candles to finalize @%s: %w", interval, bucket, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	res := s.db.Model(dest).Where("date = ? AND status = ?", bucket, CandleCurrent).Update("status", CandleFinalized)
	if res.Error != nil {
		return nil, fmt.Errorf("store: finalize %s candles @%s: %w", interval, bucket, res.Error)
	}
	for i := range rows {
		rows[i].Status = CandleFinalized
	}
	return rows, nil
}

// --- SyncState ----------------------------------------------------------

// GetSyncState reads the checkpoint row, creating a zero-value row on
// first run. Safe to call concurrently with the writer, so external
// monitors can poll it.
func (s *Store) GetSyncState(poolManagerAddress string) (*SyncStateRecord, error) {
	var rec SyncStateRecord
	err := s.db.Where("pool_manager_address = ?", poolManagerAddress).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = SyncStateRecord{PoolManagerAddress: poolManagerAddress}
		if err := s.db.Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("store: init sync state for %s: %w", poolManagerAddress, err)
		}
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get sync state %s: %w", poolManagerAddress, err)
	}
	return &rec, nil
}

// CommitSyncState advances the checkpoint after a successful batch.
func (s *Store) CommitSyncState(poolManagerAddress string, lastSyncedBlock, currentBlock uint64, initialSyncComplete bool, at time.Time) error {
	res := s.db.Model(&SyncStateRecord{}).Where("pool_manager_address = ?", poolManagerAddress).Updates(map[string]interface{}{
		"last_synced_block":        lastSyncedBlock,
		"current_block":            currentBlock,
		"is_initial_sync_complete": initialSyncComplete,
		"last_synced_at":           at,
	})
	if res.Error != nil {
		return fmt.Errorf("store: commit sync state %s: %w", poolManagerAddress, res.Error)
	}
	return nil
}
