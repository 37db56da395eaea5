package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"edushare/internal/config"
	"edushare/internal/infrastructure/lock"
	"edushare/internal/model"
	"edushare/internal/repository"
	"edushare/pkg/idgen"
	"edushare/pkg/vietqr"
	"edushare/pkg/vnpay"
)

// Gateway response codes per the VNPay IPN contract.
const (
	RspSuccess          = "00"
	RspOrderNotFound    = "01"
	RspAlreadyConfirmed = "02"
	RspInvalidAmount    = "04"
	RspInvalidChecksum  = "97"
	RspUnknownError     = "99"
)

// IPNResult is the fixed-shape body every IPN reply carries. Gateway-facing
// failures never surface as HTTP errors; they are encoded here so the
// gateway can apply its own retry contract.
type IPNResult struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// ReturnResult is the display-only outcome for the user-facing return URL.
type ReturnResult struct {
	Code    string          `json:"code"`
	Success bool            `json:"success"`
	Amount  decimal.Decimal `json:"amount,omitempty"`
	Message string          `json:"message"`
}

// PaymentService is the gateway adapter: it builds VNPay checkout URLs and
// VietQR images for pending top-ups and turns gateway callbacks into
// ledger transitions. The IPN path is the only place a purchase gets
// credited; the return URL never mutates state.
type PaymentService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	signer      *vnpay.Signer
	txnSvc      *TransactionService
	txnRepo     *repository.TransactionRepository
}

func NewPaymentService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, txnSvc *TransactionService) *PaymentService {
	return &PaymentService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		signer:      vnpay.NewSigner(cfg.VNPay.SecretKey),
		txnSvc:      txnSvc,
		txnRepo:     repository.NewTransactionRepository(db),
	}
}

// CreateVNPayURL builds the hosted-checkout redirect URL for a pending
// purchase. vnp_Amount is the decimal amount times 100, as an integer.
func (s *PaymentService) CreateVNPayURL(ctx context.Context, code, clientIP string) (string, error) {
	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if txn.Type != model.TransactionTypePurchase {
		return "", fmt.Errorf("transaction %s is not a coin purchase", code)
	}
	if txn.Status != model.TransactionStatusPending {
		return "", ErrAlreadyProcessed
	}

	now := time.Now()
	amount100 := txn.Amount.Mul(decimal.NewFromInt(100)).IntPart()

	params := map[string]string{
		"vnp_Version":    vnpay.Version,
		"vnp_Command":    vnpay.Command,
		"vnp_TmnCode":    s.cfg.VNPay.TmnCode,
		"vnp_Amount":     fmt.Sprintf("%d", amount100),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     txn.Code,
		"vnp_OrderInfo":  fmt.Sprintf("Nap xu cho giao dich %s", txn.Code),
		"vnp_OrderType":  "topup",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  s.cfg.VNPay.ReturnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": vnpay.FormatTime(now),
		"vnp_ExpireDate": vnpay.FormatTime(now.Add(15 * time.Minute)),
	}

	if err := s.txnRepo.UpdatePaymentMethod(ctx, code, model.PaymentMethodVNPay); err != nil {
		return "", err
	}

	return s.signer.BuildPayURL(s.cfg.VNPay.URL, params), nil
}

// CreateQRPayment returns the VietQR image URL for a pending purchase. The
// transaction code travels in the transfer memo; the bank callback echoes
// it back for matching.
func (s *PaymentService) CreateQRPayment(ctx context.Context, code string) (string, error) {
	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if txn.Type != model.TransactionTypePurchase {
		return "", fmt.Errorf("transaction %s is not a coin purchase", code)
	}
	if txn.Status != model.TransactionStatusPending {
		return "", ErrAlreadyProcessed
	}

	if err := s.txnRepo.UpdatePaymentMethod(ctx, code, model.PaymentMethodQRBanking); err != nil {
		return "", err
	}

	acct := vietqr.Account{
		BankBin:       s.cfg.QRBanking.BankBin,
		AccountNumber: s.cfg.QRBanking.AccountNumber,
		AccountName:   s.cfg.QRBanking.AccountName,
	}
	return vietqr.ImageURL(acct, txn.Amount, txn.Code), nil
}

// ProcessIPN is the authoritative completion path. Verification order:
// signature, transaction lookup, PENDING check, amount match, then the
// gateway's own result codes. A per-code lock plus the PENDING re-check
// under it makes a replayed IPN a no-op with RspCode 02.
func (s *PaymentService) ProcessIPN(ctx context.Context, params map[string]string) IPNResult {
	if !s.signer.Verify(params) {
		return IPNResult{RspCode: RspInvalidChecksum, Message: "Invalid Checksum"}
	}

	code := params["vnp_TxnRef"]
	if code == "" {
		return IPNResult{RspCode: RspOrderNotFound, Message: "Order Not Found"}
	}

	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return IPNResult{RspCode: RspOrderNotFound, Message: "Order Not Found"}
		}
		log.Printf("[Payment] IPN lookup failed: code=%s err=%v", code, err)
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}

	if txn.Status != model.TransactionStatusPending {
		return IPNResult{RspCode: RspAlreadyConfirmed, Message: "Order Already Confirmed"}
	}

	expectedAmount := txn.Amount.Mul(decimal.NewFromInt(100))
	gotAmount, err := decimal.NewFromString(params["vnp_Amount"])
	if err != nil || !gotAmount.Equal(expectedAmount) {
		return IPNResult{RspCode: RspInvalidAmount, Message: "Invalid Amount"}
	}

	cbLock := lock.NewCallbackLock(s.redisClient, code, idgen.NewLockToken())
	if err := cbLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		log.Printf("[Payment] IPN lock not acquired: code=%s err=%v", code, err)
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}
	defer cbLock.Unlock(ctx)

	// Re-check under the lock: the replayed delivery loses the race and
	// sees a terminal status here.
	txn, err = s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}
	if txn.Status != model.TransactionStatusPending {
		return IPNResult{RspCode: RspAlreadyConfirmed, Message: "Order Already Confirmed"}
	}

	if params["vnp_ResponseCode"] == "00" && params["vnp_TransactionStatus"] == "00" {
		if err := s.txnSvc.CompleteCoinPurchase(ctx, txn, model.PaymentMethodVNPay); err != nil {
			log.Printf("[Payment] IPN completion failed: code=%s err=%v", code, err)
			return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
		}
		return IPNResult{RspCode: RspSuccess, Message: "Confirm Success"}
	}

	reason := fmt.Sprintf("VNPay ResponseCode=%s TransactionStatus=%s",
		params["vnp_ResponseCode"], params["vnp_TransactionStatus"])
	if err := s.txnSvc.FailPurchase(ctx, code, reason); err != nil {
		log.Printf("[Payment] IPN fail-mark error: code=%s err=%v", code, err)
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}
	return IPNResult{RspCode: RspSuccess, Message: "Confirm Success"}
}

// ProcessReturn renders the user-facing payment outcome. Display only; the
// IPN path owns all state changes.
func (s *PaymentService) ProcessReturn(ctx context.Context, params map[string]string) ReturnResult {
	if !s.signer.Verify(params) {
		return ReturnResult{Success: false, Message: "Chữ ký không hợp lệ"}
	}

	code := params["vnp_TxnRef"]
	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return ReturnResult{Code: code, Success: false, Message: "Không tìm thấy giao dịch"}
	}

	if params["vnp_ResponseCode"] == "00" {
		return ReturnResult{
			Code:    code,
			Success: true,
			Amount:  txn.Amount,
			Message: "Thanh toán thành công",
		}
	}
	return ReturnResult{
		Code:    code,
		Success: false,
		Amount:  txn.Amount,
		Message: fmt.Sprintf("Thanh toán thất bại (mã %s)", params["vnp_ResponseCode"]),
	}
}

// ProcessQRCallback handles the bank-transfer confirmation. The signature
// check is a presence check only.
// TODO: replace with the bank's real callback signature scheme once the
// bank partner publishes one.
func (s *PaymentService) ProcessQRCallback(ctx context.Context, params map[string]string) IPNResult {
	if params["signature"] == "" {
		return IPNResult{RspCode: RspInvalidChecksum, Message: "Invalid Checksum"}
	}

	code := params["transaction_code"]
	if code == "" {
		return IPNResult{RspCode: RspOrderNotFound, Message: "Order Not Found"}
	}

	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return IPNResult{RspCode: RspOrderNotFound, Message: "Order Not Found"}
		}
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}
	if txn.Status != model.TransactionStatusPending {
		return IPNResult{RspCode: RspAlreadyConfirmed, Message: "Order Already Confirmed"}
	}

	cbLock := lock.NewCallbackLock(s.redisClient, code, idgen.NewLockToken())
	if err := cbLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}
	defer cbLock.Unlock(ctx)

	txn, err = s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}
	if txn.Status != model.TransactionStatusPending {
		return IPNResult{RspCode: RspAlreadyConfirmed, Message: "Order Already Confirmed"}
	}

	if params["status"] == "success" {
		if err := s.txnSvc.CompleteCoinPurchase(ctx, txn, model.PaymentMethodQRBanking); err != nil {
			return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
		}
		return IPNResult{RspCode: RspSuccess, Message: "Confirm Success"}
	}

	if err := s.txnSvc.FailPurchase(ctx, code, "QR banking reported failure"); err != nil {
		return IPNResult{RspCode: RspUnknownError, Message: "Unknown Error"}
	}
	return IPNResult{RspCode: RspSuccess, Message: "Confirm Success"}
}
