package service

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"edushare/internal/config"
	"edushare/internal/model"
)

func newTestPurchaseService(t *testing.T) (*PurchaseService, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Withdrawal: config.WithdrawalConfig{PendingPurchaseExpiry: 15},
	}
	return NewPurchaseService(db, rdb, cfg), mock
}

func userColumns() []string {
	return []string{
		"id", "username", "email", "full_name", "status", "coin_balance",
		"total_spent", "total_coins_purchased", "created_at", "updated_at", "deleted_at",
	}
}

func documentColumns() []string {
	return []string{"id", "title", "price", "downloads_count", "created_at", "updated_at", "deleted_at"}
}

func ownerColumns() []string {
	return []string{"user_id", "document_id", "ownership_type", "created_at"}
}

func expectDocument(mock sqlmock.Sqlmock, id int64, price string) {
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM `documents`").
		WillReturnRows(sqlmock.NewRows(documentColumns()).
			AddRow(id, "Đề cương ôn tập giải tích", price, 12, now, now, nil))
}

func expectActiveUser(mock sqlmock.Sqlmock, id int64, balance string) {
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM `users`").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(id, "buyer", "buyer@example.com", "Nguyễn Văn A", "active",
				balance, "0", "0", now, now, nil))
}

// timeArg matches any non-null time parameter.
type timeArg struct{}

func (timeArg) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

func TestDownloadAlreadyOwnedSkipsCharge(t *testing.T) {
	svc, mock := newTestPurchaseService(t)

	expectDocument(mock, 3, "50")
	// Balance below the price: ownership is checked first, so the request
	// still succeeds without a charge.
	expectActiveUser(mock, 7, "10")
	mock.ExpectQuery("SELECT (.+) FROM `document_owners`").
		WillReturnRows(sqlmock.NewRows(ownerColumns()).AddRow(7, 3, "free", time.Now()))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `documents`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.ProcessDocumentDownload(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.False(t, res.Charged)
	assert.Equal(t, model.OwnershipTypeFree, res.Ownership)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadFreeDocumentGrantsWithoutTransaction(t *testing.T) {
	svc, mock := newTestPurchaseService(t)

	expectDocument(mock, 4, "0")
	expectActiveUser(mock, 7, "100")
	mock.ExpectQuery("SELECT (.+) FROM `document_owners`").
		WillReturnRows(sqlmock.NewRows(ownerColumns()))

	// A free grant writes ownership and bumps the counter, nothing else.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `document_owners`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `documents`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.ProcessDocumentDownload(context.Background(), 7, 4)
	require.NoError(t, err)
	assert.False(t, res.Charged)
	assert.Equal(t, model.OwnershipTypeFree, res.Ownership)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadPriorCompletedPurchaseRepairsOwnership(t *testing.T) {
	svc, mock := newTestPurchaseService(t)

	expectDocument(mock, 3, "50")
	expectActiveUser(mock, 7, "1000")
	mock.ExpectQuery("SELECT (.+) FROM `document_owners`").
		WillReturnRows(sqlmock.NewRows(ownerColumns()))
	// A COMPLETED purchase already exists, so ownership is repaired instead
	// of charging a second time.
	mock.ExpectQuery("SELECT count(.+) FROM `transaction_details`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `document_owners`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `documents`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.ProcessDocumentDownload(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.False(t, res.Charged)
	assert.Equal(t, model.OwnershipTypeBuyer, res.Ownership)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadChargesBuyerAndPaysSeller(t *testing.T) {
	svc, mock := newTestPurchaseService(t)

	expectDocument(mock, 3, "100")
	expectActiveUser(mock, 7, "500")
	mock.ExpectQuery("SELECT (.+) FROM `document_owners`").
		WillReturnRows(sqlmock.NewRows(ownerColumns()))
	mock.ExpectQuery("SELECT count(.+) FROM `transaction_details`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	// Code generation, then the PENDING row committed ahead of the charge.
	// The row must carry an expiry so the timeout job can fail it if the
	// charge never lands.
	mock.ExpectQuery("SELECT count(.+) FROM `transactions`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WithArgs("TXN000001", "DOCUMENT_DOWNLOAD", "PENDING", "100", "0", "COIN_BALANCE",
			int64(7), sqlmock.AnyArg(), timeArg{}, sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// Seller lookup finds the uploader.
	mock.ExpectQuery("SELECT (.+) FROM `document_owners`").
		WillReturnRows(sqlmock.NewRows(ownerColumns()).AddRow(9, 3, "owner", time.Now()))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users`").
		WithArgs("100", sqlmock.AnyArg(), int64(7), "100").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `transaction_details`").WillReturnResult(sqlmock.NewResult(1, 1))
	// The seller receives 85 of the 100 coin price.
	mock.ExpectExec("UPDATE `users`").
		WithArgs("85", sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `transaction_details`").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO `document_owners`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `documents`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `transactions`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.ProcessDocumentDownload(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.True(t, res.Charged)
	assert.Equal(t, "TXN000001", res.Code)
	assert.Equal(t, model.OwnershipTypeBuyer, res.Ownership)
	assert.NoError(t, mock.ExpectationsWereMet())
}
