package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"edushare/internal/config"
)

func newTestWithdrawalService(t *testing.T) (*WithdrawalService, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	cfg := &config.Config{
		Withdrawal: config.WithdrawalConfig{
			MinAmount:    50,
			MaxAmount:    50000,
			ExchangeRate: 1000,
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{Notification: "notifications", Email: "emails"},
		},
	}
	settings := NewSettingsService(&cfg.Withdrawal)
	return NewWithdrawalService(db, nil, cfg, settings), mock
}

func pendingWithdrawalRow(code, amount, fee, notes string, userID int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(transactionColumns()).
		AddRow(1, code, "WITHDRAWAL", "PENDING", amount, fee, "BANK_TRANSFER",
			userID, notes, nil, now, now, nil)
}

func TestRejectRefundsAmountPlusStoredFee(t *testing.T) {
	svc, mock := newTestWithdrawalService(t)

	notes := "Rút tiền: 1000 xu | Phí: 20 xu (2%) | Số xu thực nhận: 980 xu"
	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WillReturnRows(pendingWithdrawalRow("WD00000001", "1000", "20", notes, 7))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `transactions`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The refund restores amount plus the fee charged at creation.
	mock.ExpectExec("UPDATE `users`").
		WithArgs("1020", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `outbox_messages`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.Reject(context.Background(), "WD00000001", "tài khoản ngân hàng không hợp lệ")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectRefundsFeeFromNotes(t *testing.T) {
	// Rows written before the fee column existed carry the fee only in the
	// notes line.
	svc, mock := newTestWithdrawalService(t)

	notes := "Rút tiền: 500 xu | Phí: 12.5 xu (2.5%) | Số xu thực nhận: 487.5 xu"
	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WillReturnRows(pendingWithdrawalRow("WD00000002", "500", "0", notes, 7))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `transactions`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `users`").
		WithArgs("512.5", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `outbox_messages`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.Reject(context.Background(), "WD00000002", "sai thông tin chuyển khoản")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelRecomputesFeeAsOfCreation(t *testing.T) {
	svc, mock := newTestWithdrawalService(t)

	// A zero fee column and no fee marker force the recomputation path. Two
	// withdrawals existed before this one, so the 2% tier applies and the
	// refund is 1000 + 20.
	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WillReturnRows(pendingWithdrawalRow("WD00000003", "1000", "0", "", 7))

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM `users`").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(7, "buyer", "buyer@example.com", "Nguyễn Văn A", "active",
				"500", "0", "0", now, now, nil))
	mock.ExpectQuery("SELECT count(.+) FROM `transactions`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `transactions`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `users`").
		WithArgs("1020", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.Cancel(context.Background(), 7, "WD00000003")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWithdrawalNotesRoundTrip(t *testing.T) {
	p := WithdrawalProfile{
		Amount:           d("1000"),
		PriorWithdrawals: 3,
	}
	q := QuoteWithdrawal(p, decimal.NewFromInt(1000))
	notes := buildWithdrawalNotes(q, "0123456789")

	assert.Contains(t, notes, "Rút tiền: 1000 xu")
	assert.Contains(t, notes, "Số xu thực nhận: 980 xu")
	assert.Contains(t, notes, "STK: 0123456789")

	fee, ok := ExtractFeeFromNotes(notes)
	require.True(t, ok)
	assert.True(t, fee.Equal(d("20")), "fee=%s", fee)
}

func TestBuildWithdrawalNotesFirstFree(t *testing.T) {
	p := WithdrawalProfile{Amount: d("100")}
	q := QuoteWithdrawal(p, decimal.NewFromInt(1000))
	notes := buildWithdrawalNotes(q, "")

	assert.Contains(t, notes, firstFreeNote)

	fee, ok := ExtractFeeFromNotes(notes)
	require.True(t, ok)
	assert.True(t, fee.IsZero())
}

func TestExtractFeeFromNotes(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		want  string
		ok    bool
	}{
		{"standard line", "Rút tiền: 1000 xu | Phí: 20 xu (2%) | Số xu thực nhận: 980 xu", "20", true},
		{"decimal fee", "Phí: 12.5 xu (2.5%)", "12.5", true},
		{"no marker", "Rút tiền: 1000 xu", "0", false},
		{"empty", "", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, ok := ExtractFeeFromNotes(tt.notes)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, fee.Equal(d(tt.want)), "fee=%s", fee)
			}
		})
	}
}
