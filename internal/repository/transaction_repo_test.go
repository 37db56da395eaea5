package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"edushare/internal/model"
)

func openMockDB(t *testing.T, sqlDB *sql.DB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db
}

func TestExistsByCodeCountsSoftDeletedRows(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	repo := NewTransactionRepository(openMockDB(t, sqlDB))

	// The code column carries a global unique index, so the existence check
	// must not filter on deleted_at; a burned code stays burned.
	mock.ExpectQuery("SELECT count(*) FROM `transactions` WHERE code = ?").
		WithArgs("WD00000001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsByCode(context.Background(), "WD00000001")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextCodeSkipsBurnedCodes(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	repo := NewTransactionRepository(openMockDB(t, sqlDB))

	mock.ExpectQuery("SELECT count(.+) FROM `transactions`").
		WithArgs("TXN000001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT count(.+) FROM `transactions`").
		WithArgs("TXN000002").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	code, err := repo.NextCode(context.Background(), "TXN", 6)
	require.NoError(t, err)
	assert.Equal(t, "TXN000002", code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpiredScanCoversDocumentDownloads(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	repo := NewTransactionRepository(openMockDB(t, sqlDB))

	// Both top-ups and document purchases open PENDING rows with an expiry;
	// the scan has to pick up each kind.
	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WithArgs(model.TransactionTypePurchase, model.TransactionTypeDocumentDownload,
			model.TransactionStatusPending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	txns, err := repo.GetExpiredPendingPurchases(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.NoError(t, mock.ExpectationsWereMet())
}
