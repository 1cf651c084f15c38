package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockStore wires a Store over a sqlmock connection: gorm is
// pointed at a fake driver.Conn so no real MySQL instance is needed,
// and AutoMigrate is skipped by constructing Store directly instead of
// via New.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Store{db: gormDB}, mock
}

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, IsDuplicateKey(nil))
	assert.False(t, IsDuplicateKey(assertError("boom")))
	assert.True(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1062, Message: "dup"}))
	assert.False(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1451, Message: "fk"}))
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestGetPoolNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `pools`").
		WillReturnRows(sqlmock.NewRows(nil))

	rec, err := s.GetPool("0xaa")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePoolInsertsRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `pools`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &PoolRecord{
		PoolID:                 "0xaa",
		Currency0:              "0xc0",
		Currency1:              "0xd1",
		Fee:                    3000,
		TickSpacing:            60,
		SqrtPriceX96:           "79228162514264337593543950336",
		Liquidity:              "0",
		TotalValueLockedToken0: "0",
		TotalValueLockedToken1: "0",
		Token0Price:            "1",
		Token1Price:            "1",
	}
	err := s.CreatePool(rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePoolDuplicateSurfacesAsDuplicateKey(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `pools`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "duplicate entry"})
	mock.ExpectRollback()

	err := s.CreatePool(&PoolRecord{PoolID: "0xaa"})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))
}

func TestInsertSwapEventDuplicateIsDetectable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `swap_events`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "duplicate entry"})
	mock.ExpectRollback()

	err := s.InsertSwapEvent(&SwapEventRecord{TransactionHash: "0x1", LogIndex: 0})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))
}

func TestGetSyncStateCreatesRowOnFirstRun(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `sync_states`").
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `sync_states`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec, err := s.GetSyncState("0xpoolmanager")
	require.NoError(t, err)
	assert.Equal(t, "0xpoolmanager", rec.PoolManagerAddress)
	assert.Equal(t, uint64(0), rec.LastSyncedBlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSyncStateUpdatesCheckpoint(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `sync_states`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.CommitSyncState("0xpoolmanager", 100, 105, true, time.Now().UTC())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeCandlesNoneCurrentIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `minute_candles`").
		WillReturnRows(sqlmock.NewRows(nil))

	rows, err := s.FinalizeCandles(IntervalMinute, time.Now().UTC())
	assert.NoError(t, err)
	assert.Nil(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrentCandleNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `minute_candles`").
		WillReturnRows(sqlmock.NewRows(nil))

	fields, err := s.GetCurrentCandle(IntervalMinute, "0xtoken", time.Now().UTC())
	assert.NoError(t, err)
	assert.Nil(t, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCurrentCandleSetsStatus(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `minute_candles`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.CreateCurrentCandle(IntervalMinute, CandleFields{
		TokenAddress: "0xtoken",
		Date:         time.Now().UTC(),
		Volume:       "1000000000000000000",
		Open:         "1", High: "1", Low: "1", Close: "1",
		TxCount: 1,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTokenNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `tokens`").
		WillReturnRows(sqlmock.NewRows(nil))

	rec, err := s.GetToken("0xtoken")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}
