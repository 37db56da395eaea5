package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"edushare/internal/config"
	"edushare/pkg/vnpay"
)

const testVNPaySecret = "TESTSECRETKEY123"

func newTestPaymentService(t *testing.T) (*PaymentService, sqlmock.Sqlmock) {
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
		VNPay: config.VNPayConfig{
			TmnCode:   "DEMO",
			SecretKey: testVNPaySecret,
			URL:       "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
			ReturnURL: "https://example.com/payment/vnpay/return",
		},
	}

	txnSvc := NewTransactionService(db, cfg)
	return NewPaymentService(db, nil, cfg, txnSvc), mock
}

// signedIPNParams returns a callback parameter map with a valid signature.
func signedIPNParams(code, amount, responseCode string) map[string]string {
	params := map[string]string{
		"vnp_TmnCode":           "DEMO",
		"vnp_TxnRef":            code,
		"vnp_Amount":            amount,
		"vnp_ResponseCode":      responseCode,
		"vnp_TransactionStatus": responseCode,
	}
	signer := vnpay.NewSigner(testVNPaySecret)
	params[vnpay.ParamSecureHash] = signer.Sign(params)
	return params
}

func transactionColumns() []string {
	return []string{
		"id", "code", "type", "status", "amount", "fee", "payment_method",
		"user_id", "notes", "expired_at", "created_at", "updated_at", "deleted_at",
	}
}

func TestProcessIPNInvalidChecksum(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	params := signedIPNParams("TXN000001", "100000", "00")
	params["vnp_Amount"] = "999999" // breaks the signature

	result := svc.ProcessIPN(context.Background(), params)

	assert.Equal(t, RspInvalidChecksum, result.RspCode)
	assert.Equal(t, "Invalid Checksum", result.Message)
	// Nothing reached the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIPNOrderNotFound(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WillReturnRows(sqlmock.NewRows(transactionColumns()))

	result := svc.ProcessIPN(context.Background(), signedIPNParams("TXN999999", "100000", "00"))

	assert.Equal(t, RspOrderNotFound, result.RspCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIPNAlreadyConfirmed(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(1, "TXN000001", "PURCHASE", "COMPLETED", "1000.00", "0.00", "VNPAY",
				7, "", nil, now, now, nil))

	result := svc.ProcessIPN(context.Background(), signedIPNParams("TXN000001", "100000", "00"))

	assert.Equal(t, RspAlreadyConfirmed, result.RspCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIPNInvalidAmount(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(1, "TXN000001", "PURCHASE", "PENDING", "1000.00", "0.00", "VNPAY",
				7, "", nil, now, now, nil))

	// amount 1000.00 expects vnp_Amount 100000; 150000 must be rejected
	// with the transaction left untouched.
	result := svc.ProcessIPN(context.Background(), signedIPNParams("TXN000001", "150000", "00"))

	assert.Equal(t, RspInvalidAmount, result.RspCode)
	assert.Equal(t, "Invalid Amount", result.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessQRCallbackMissingSignature(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	result := svc.ProcessQRCallback(context.Background(), map[string]string{
		"transaction_code": "TXN000001",
		"status":           "success",
	})

	assert.Equal(t, RspInvalidChecksum, result.RspCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessQRCallbackOrderNotFound(t *testing.T) {
	svc, mock := newTestPaymentService(t)

	mock.ExpectQuery("SELECT (.+) FROM `transactions`").
		WillReturnRows(sqlmock.NewRows(transactionColumns()))

	result := svc.ProcessQRCallback(context.Background(), map[string]string{
		"transaction_code": "TXN999999",
		"status":           "success",
		"signature":        "present",
	})

	assert.Equal(t, RspOrderNotFound, result.RspCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
