package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"edushare/internal/config"
	"edushare/internal/model"
	"edushare/internal/repository"
	"edushare/pkg/idgen"
)

const (
	purchaseCodePrefix   = "TXN"
	purchaseCodeWidth    = 6
	withdrawalCodePrefix = "WD"
	withdrawalCodeWidth  = 8
)

// TransactionService owns the coin purchase lifecycle: creating a PENDING
// top-up, crediting coins when the gateway confirms payment, and expiring
// the ones the gateway never confirms.
type TransactionService struct {
	db         *gorm.DB
	cfg        *config.Config
	txnRepo    *repository.TransactionRepository
	detailRepo *repository.TransactionDetailRepository
	userRepo   *repository.UserRepository
	outboxRepo *repository.OutboxRepository
}

func NewTransactionService(db *gorm.DB, cfg *config.Config) *TransactionService {
	return &TransactionService{
		db:         db,
		cfg:        cfg,
		txnRepo:    repository.NewTransactionRepository(db),
		detailRepo: repository.NewTransactionDetailRepository(db),
		userRepo:   repository.NewUserRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

type CreatePurchaseRequest struct {
	UserID    int64           `json:"user_id" binding:"required"`
	PackageID int64           `json:"package_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Coins     decimal.Decimal `json:"coins" binding:"required"`
}

type PurchaseResponse struct {
	Code      string          `json:"code"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Coins     decimal.Decimal `json:"coins"`
	ExpiredAt *time.Time      `json:"expired_at,omitempty"`
}

// CreatePurchase opens a PENDING coin top-up and its package line item. The
// transaction expires if no gateway confirmation arrives within the
// configured window.
func (s *TransactionService) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest) (*PurchaseResponse, error) {
	if !req.Amount.IsPositive() || !req.Coins.IsPositive() {
		return nil, fmt.Errorf("amount and coins must be positive")
	}

	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrUserNotActive
	}

	code, err := s.txnRepo.NextCode(ctx, purchaseCodePrefix, purchaseCodeWidth)
	if err != nil {
		return nil, fmt.Errorf("generate transaction code: %w", err)
	}

	expiredAt := time.Now().Add(time.Duration(s.cfg.Withdrawal.PendingPurchaseExpiry) * time.Minute)

	txn := &model.Transaction{
		Code:      code,
		Type:      model.TransactionTypePurchase,
		Status:    model.TransactionStatusPending,
		Amount:    req.Amount,
		UserID:    req.UserID,
		Notes:     fmt.Sprintf("Nạp %s xu", req.Coins.String()),
		ExpiredAt: &expiredAt,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		detail := &model.TransactionDetail{
			TransactionID: txn.ID,
			DetailType:    model.DetailTypeCoinPackage,
			ReferenceID:   req.PackageID,
			Quantity:      1,
			UnitPrice:     req.Amount,
			Amount:        req.Amount,
			CoinsReceived: req.Coins,
		}
		if err := s.detailRepo.Create(ctx, tx, detail); err != nil {
			return fmt.Errorf("create transaction detail: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Transaction] purchase created: code=%s userID=%d amount=%s coins=%s",
		code, req.UserID, req.Amount.String(), req.Coins.String())

	return &PurchaseResponse{
		Code:      code,
		Status:    txn.Status,
		Amount:    req.Amount,
		Coins:     req.Coins,
		ExpiredAt: &expiredAt,
	}, nil
}

func (s *TransactionService) GetByCode(ctx context.Context, code string) (*model.Transaction, error) {
	return s.txnRepo.GetByCode(ctx, code)
}

// CompleteCoinPurchase credits the coins of a confirmed top-up. The credit,
// the lifetime totals and the status flip all commit in one database
// transaction; when any step fails, nothing is credited and the
// transaction is marked FAILED instead.
func (s *TransactionService) CompleteCoinPurchase(ctx context.Context, txn *model.Transaction, paymentMethod string) error {
	if txn.Status != model.TransactionStatusPending {
		return ErrAlreadyProcessed
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		details, err := s.detailRepo.ListByTransactionID(ctx, tx, txn.ID)
		if err != nil {
			return fmt.Errorf("load details: %w", err)
		}

		coins := decimal.Zero
		for _, d := range details {
			coins = coins.Add(d.CoinsReceived)
		}
		if !coins.IsPositive() {
			return fmt.Errorf("transaction %s has no coins to credit", txn.Code)
		}

		if err := s.userRepo.CreditCoins(ctx, tx, txn.UserID, coins); err != nil {
			return fmt.Errorf("credit coins: %w", err)
		}
		if err := s.userRepo.ApplyPurchaseTotals(ctx, tx, txn.UserID, txn.Amount, coins); err != nil {
			return fmt.Errorf("update purchase totals: %w", err)
		}

		if err := s.txnRepo.UpdateStatus(ctx, tx, txn.Code,
			model.TransactionStatusPending, model.TransactionStatusCompleted); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":          "topup.completed",
			"code":           txn.Code,
			"user_id":        txn.UserID,
			"coins":          coins.String(),
			"payment_method": paymentMethod,
			"completed_at":   time.Now().Format(time.RFC3339),
		})
		msg := &model.OutboxMessage{
			MessageKey: idgen.NewMessageKey(),
			Topic:      s.cfg.Kafka.Topic.Notification,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}
		return nil
	})
	if err != nil {
		s.failPurchase(ctx, txn.Code, err.Error())
		return err
	}

	if paymentMethod != "" {
		if err := s.txnRepo.UpdatePaymentMethod(ctx, txn.Code, paymentMethod); err != nil {
			log.Printf("[Transaction] record payment method failed: code=%s err=%v", txn.Code, err)
		}
	}

	log.Printf("[Transaction] purchase completed: code=%s userID=%d", txn.Code, txn.UserID)
	return nil
}

func (s *TransactionService) failPurchase(ctx context.Context, code, reason string) {
	err := s.txnRepo.UpdateStatusAndNotes(ctx, nil, code,
		model.TransactionStatusPending, model.TransactionStatusFailed,
		fmt.Sprintf("Thanh toán thất bại: %s", reason))
	if err != nil {
		log.Printf("[Transaction] mark failed error: code=%s err=%v", code, err)
	}
}

// FailPurchase marks a pending top-up FAILED, e.g. when the gateway reports
// a non-success response code.
func (s *TransactionService) FailPurchase(ctx context.Context, code, reason string) error {
	return s.txnRepo.UpdateStatusAndNotes(ctx, nil, code,
		model.TransactionStatusPending, model.TransactionStatusFailed,
		fmt.Sprintf("Thanh toán thất bại: %s", reason))
}
