package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"edushare/internal/config"
	"edushare/internal/infrastructure/lock"
	"edushare/internal/model"
	"edushare/internal/repository"
	"edushare/pkg/idgen"
)

// feeNotePattern matches the fee line persisted into withdrawal notes at
// creation time, e.g. "Phí: 20 xu (2%)". Refunds for rows that predate the
// fee column are reconstructed from this.
var feeNotePattern = regexp.MustCompile(`Phí: ([0-9.]+) xu`)

const firstFreeNote = "Miễn phí lần đầu"

// WithdrawalService runs the withdrawal lifecycle: quote, create (with the
// coin deduction), admin approve/reject, and user cancel. All balance
// mutations pair with the status write in one database transaction.
type WithdrawalService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	settings    *SettingsService
	txnRepo     *repository.TransactionRepository
	userRepo    *repository.UserRepository
	outboxRepo  *repository.OutboxRepository
}

func NewWithdrawalService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, settings *SettingsService) *WithdrawalService {
	return &WithdrawalService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		settings:    settings,
		txnRepo:     repository.NewTransactionRepository(db),
		userRepo:    repository.NewUserRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type CreateWithdrawalRequest struct {
	UserID        int64           `json:"user_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod string          `json:"payment_method"`
	BankAccount   string          `json:"bank_account"`
}

type WithdrawalResponse struct {
	Code      string          `json:"code"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"net_amount"`
	AmountVND decimal.Decimal `json:"amount_vnd"`
	RiskLevel string          `json:"risk_level"`
	EstHours  int             `json:"estimate_hours"`
	Notes     string          `json:"notes"`
}

func (s *WithdrawalService) validateAmount(amount decimal.Decimal) error {
	min := decimal.NewFromInt(s.cfg.Withdrawal.MinAmount)
	max := decimal.NewFromInt(s.cfg.Withdrawal.MaxAmount)
	if amount.LessThan(min) || amount.GreaterThan(max) {
		return ErrAmountOutOfRange
	}
	return nil
}

// buildProfile assembles the fee/risk inputs from the user's withdrawal
// history as of now.
func (s *WithdrawalService) buildProfile(ctx context.Context, user *model.User, amount decimal.Decimal) (WithdrawalProfile, error) {
	now := time.Now()

	prior, err := s.txnRepo.CountByUserAndType(ctx, user.ID, model.TransactionTypeWithdrawal)
	if err != nil {
		return WithdrawalProfile{}, fmt.Errorf("count withdrawals: %w", err)
	}
	last7, err := s.txnRepo.CountByUserTypeSince(ctx, user.ID, model.TransactionTypeWithdrawal, now.AddDate(0, 0, -7))
	if err != nil {
		return WithdrawalProfile{}, fmt.Errorf("count recent withdrawals: %w", err)
	}
	completed90, err := s.txnRepo.CountByUserTypeStatusSince(ctx, user.ID,
		model.TransactionTypeWithdrawal, model.TransactionStatusCompleted, now.AddDate(0, 0, -90))
	if err != nil {
		return WithdrawalProfile{}, fmt.Errorf("count completed withdrawals: %w", err)
	}
	failed90, err := s.txnRepo.CountByUserTypeStatusSince(ctx, user.ID,
		model.TransactionTypeWithdrawal, model.TransactionStatusFailed, now.AddDate(0, 0, -90))
	if err != nil {
		return WithdrawalProfile{}, fmt.Errorf("count failed withdrawals: %w", err)
	}

	return WithdrawalProfile{
		Amount:                 amount,
		PriorWithdrawals:       prior,
		WithdrawalsLast7Days:   last7,
		CompletedLast90Days:    completed90,
		FailedLast90Days:       failed90,
		LifetimeCoinsPurchased: user.TotalCoinsPurchased,
		AccountAgeDays:         int(now.Sub(user.CreatedAt).Hours() / 24),
		PromotionActive:        s.settings.PromotionActive(),
		PromoDiscount:          s.settings.PromoDiscount(),
	}, nil
}

// Preview quotes fee, risk and ETA without creating anything.
func (s *WithdrawalService) Preview(ctx context.Context, userID int64, amount decimal.Decimal) (*WithdrawalQuote, error) {
	if err := s.validateAmount(amount); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.buildProfile(ctx, user, amount)
	if err != nil {
		return nil, err
	}
	quote := QuoteWithdrawal(profile, decimal.NewFromInt(s.cfg.Withdrawal.ExchangeRate))
	return &quote, nil
}

// Create opens a PENDING withdrawal and deducts amount plus fee from the
// user's balance in one database transaction. A per-user redis lock keeps a
// duplicate submit from interleaving with the balance check.
func (s *WithdrawalService) Create(ctx context.Context, req *CreateWithdrawalRequest) (*WithdrawalResponse, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = model.PaymentMethodBankTransfer
	}
	if method != model.PaymentMethodBankTransfer {
		return nil, ErrInvalidPaymentMethod
	}

	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrUserNotActive
	}

	wLock := lock.NewWithdrawalLock(s.redisClient, req.UserID, idgen.NewLockToken())
	if err := wLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, ErrLockNotAcquired
	}
	defer wLock.Unlock(ctx)

	profile, err := s.buildProfile(ctx, user, req.Amount)
	if err != nil {
		return nil, err
	}
	quote := QuoteWithdrawal(profile, decimal.NewFromInt(s.cfg.Withdrawal.ExchangeRate))

	code, err := s.txnRepo.NextCode(ctx, withdrawalCodePrefix, withdrawalCodeWidth)
	if err != nil {
		return nil, fmt.Errorf("generate withdrawal code: %w", err)
	}

	notes := buildWithdrawalNotes(quote, req.BankAccount)

	txn := &model.Transaction{
		Code:          code,
		Type:          model.TransactionTypeWithdrawal,
		Status:        model.TransactionStatusPending,
		Amount:        req.Amount,
		Fee:           quote.Fee,
		PaymentMethod: method,
		UserID:        req.UserID,
		Notes:         notes,
	}

	// Total charge is the requested amount plus the fee; the net amount is
	// what gets paid out.
	totalCharge := req.Amount.Add(quote.Fee)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.DeductCoins(ctx, tx, req.UserID, totalCharge); err != nil {
			return err
		}
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("create withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Withdrawal] created: code=%s userID=%d amount=%s fee=%s risk=%s",
		code, req.UserID, req.Amount.String(), quote.Fee.String(), quote.RiskLevel)

	return &WithdrawalResponse{
		Code:      code,
		Status:    txn.Status,
		Amount:    req.Amount,
		Fee:       quote.Fee,
		NetAmount: quote.NetAmount,
		AmountVND: quote.AmountVND,
		RiskLevel: quote.RiskLevel,
		EstHours:  quote.EstimateHours,
		Notes:     notes,
	}, nil
}

func buildWithdrawalNotes(q WithdrawalQuote, bankAccount string) string {
	parts := []string{
		fmt.Sprintf("Rút tiền: %s xu", q.Amount.String()),
		fmt.Sprintf("Phí: %s xu (%s%%)", q.Fee.String(), q.FeePercent.String()),
		fmt.Sprintf("Số xu thực nhận: %s xu", q.NetAmount.String()),
	}
	if q.FirstFree {
		parts = append(parts, firstFreeNote)
	}
	if q.Premium && !q.FirstFree {
		parts = append(parts, "Premium -0.5% phí")
	}
	if q.PromoApplied {
		parts = append(parts, "Khuyến mãi phí rút tiền")
	}
	if bankAccount != "" {
		parts = append(parts, fmt.Sprintf("STK: %s", bankAccount))
	}
	return strings.Join(parts, " | ")
}

// ExtractFeeFromNotes pulls the charged fee out of a withdrawal's notes
// line. Ok is false when the notes carry no fee marker.
func ExtractFeeFromNotes(notes string) (decimal.Decimal, bool) {
	m := feeNotePattern.FindStringSubmatch(notes)
	if m == nil {
		return decimal.Zero, false
	}
	fee, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return fee, true
}

// chargedFee recovers the fee charged when the withdrawal was created, in
// order of trust: the fee column, the notes marker, and finally a
// recomputation that evaluates "first withdrawal" strictly before this
// transaction's creation time. The current state of the promo flag or the
// user's withdrawal count must never change an already-charged fee.
func (s *WithdrawalService) chargedFee(ctx context.Context, txn *model.Transaction) (decimal.Decimal, error) {
	if txn.Fee.IsPositive() || strings.Contains(txn.Notes, firstFreeNote) {
		return txn.Fee, nil
	}
	if fee, ok := ExtractFeeFromNotes(txn.Notes); ok {
		return fee, nil
	}

	user, err := s.userRepo.GetByID(ctx, txn.UserID)
	if err != nil {
		return decimal.Zero, err
	}
	priorAtCreation, err := s.txnRepo.CountByUserAndTypeBefore(ctx, txn.UserID,
		model.TransactionTypeWithdrawal, txn.CreatedAt)
	if err != nil {
		return decimal.Zero, err
	}

	profile := WithdrawalProfile{
		Amount:                 txn.Amount,
		PriorWithdrawals:       priorAtCreation,
		LifetimeCoinsPurchased: user.TotalCoinsPurchased,
		PromotionActive:        s.settings.PromotionActive(),
		PromoDiscount:          s.settings.PromoDiscount(),
	}
	pct := EffectiveFeePercent(profile)
	return txn.Amount.Mul(pct).Div(oneHundred).Round(2), nil
}

// Approve completes a withdrawal. The funds were already deducted at
// creation, so there is no balance change; the payout instruction goes into
// the notes and the user gets a notification plus an email.
func (s *WithdrawalService) Approve(ctx context.Context, code string) error {
	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if txn.Type != model.TransactionTypeWithdrawal {
		return ErrNotWithdrawal
	}
	if !model.CanTransitionTo(txn.Status, model.TransactionStatusCompleted) {
		return repository.ErrInvalidStateTransition
	}

	fee, err := s.chargedFee(ctx, txn)
	if err != nil {
		return err
	}
	net := txn.Amount.Sub(fee)
	vnd := net.Mul(decimal.NewFromInt(s.cfg.Withdrawal.ExchangeRate))
	notes := txn.Notes + fmt.Sprintf(" | Đã duyệt: chuyển %s VND", vnd.String())

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.txnRepo.UpdateStatusAndNotes(ctx, tx, code,
			txn.Status, model.TransactionStatusCompleted, notes); err != nil {
			return err
		}
		if err := s.enqueueEvent(ctx, tx, s.cfg.Kafka.Topic.Notification,
			"withdrawal.approved", txn, vnd); err != nil {
			return err
		}
		return s.enqueueEvent(ctx, tx, s.cfg.Kafka.Topic.Email,
			"withdrawal.approved", txn, vnd)
	})
}

// Reject fails a withdrawal and returns amount plus the originally charged
// fee to the user's balance, both in one database transaction.
func (s *WithdrawalService) Reject(ctx context.Context, code, reason string) error {
	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if txn.Type != model.TransactionTypeWithdrawal {
		return ErrNotWithdrawal
	}
	if !model.CanTransitionTo(txn.Status, model.TransactionStatusFailed) {
		return repository.ErrInvalidStateTransition
	}

	fee, err := s.chargedFee(ctx, txn)
	if err != nil {
		return err
	}
	refund := txn.Amount.Add(fee)
	notes := txn.Notes + fmt.Sprintf(" | Từ chối: %s | Hoàn %s xu", reason, refund.String())

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.txnRepo.UpdateStatusAndNotes(ctx, tx, code,
			txn.Status, model.TransactionStatusFailed, notes); err != nil {
			return err
		}
		if err := s.userRepo.CreditCoins(ctx, tx, txn.UserID, refund); err != nil {
			return fmt.Errorf("refund coins: %w", err)
		}
		return s.enqueueEvent(ctx, tx, s.cfg.Kafka.Topic.Notification,
			"withdrawal.rejected", txn, refund)
	})
	if err != nil {
		return err
	}

	log.Printf("[Withdrawal] rejected: code=%s refund=%s reason=%s", code, refund.String(), reason)
	return nil
}

// Cancel is the user-initiated reversal. Only the owner may cancel and only
// while the withdrawal is still PENDING.
func (s *WithdrawalService) Cancel(ctx context.Context, userID int64, code string) error {
	txn, err := s.txnRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if txn.Type != model.TransactionTypeWithdrawal {
		return ErrNotWithdrawal
	}
	if txn.UserID != userID {
		return ErrNotOwner
	}
	if txn.Status != model.TransactionStatusPending {
		return ErrNotCancellable
	}

	fee, err := s.chargedFee(ctx, txn)
	if err != nil {
		return err
	}
	refund := txn.Amount.Add(fee)
	notes := txn.Notes + fmt.Sprintf(" | Người dùng hủy | Hoàn %s xu", refund.String())

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.txnRepo.UpdateStatusAndNotes(ctx, tx, code,
			model.TransactionStatusPending, model.TransactionStatusCancelled, notes); err != nil {
			return err
		}
		if err := s.userRepo.CreditCoins(ctx, tx, txn.UserID, refund); err != nil {
			return fmt.Errorf("refund coins: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidStateTransition) {
			return ErrNotCancellable
		}
		return err
	}

	log.Printf("[Withdrawal] cancelled: code=%s userID=%d refund=%s", code, userID, refund.String())
	return nil
}

func (s *WithdrawalService) enqueueEvent(ctx context.Context, tx *gorm.DB, topic, event string, txn *model.Transaction, amount decimal.Decimal) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"event":   event,
		"code":    txn.Code,
		"user_id": txn.UserID,
		"amount":  amount.String(),
		"at":      time.Now().Format(time.RFC3339),
	})
	msg := &model.OutboxMessage{
		MessageKey: idgen.NewMessageKey(),
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", event, err)
	}
	return nil
}
