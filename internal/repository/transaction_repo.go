package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edushare/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidStateTransition = errors.New("invalid transaction state transition")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, txn *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *TransactionRepository) GetByCode(ctx context.Context, code string) (*model.Transaction, error) {
	var txn model.Transaction
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var txn model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// ExistsByCode checks all rows including soft-deleted ones. The code column
// carries a global unique index, so a code burned by a deleted row must never
// be handed out again.
func (r *TransactionRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Unscoped().
		Model(&model.Transaction{}).
		Where("code = ?", code).
		Count(&count).Error
	return count > 0, err
}

// NextCode returns the first unused <prefix><sequence> code. Codes stay
// human-readable and roughly sequential; a UUID would not.
func (r *TransactionRepository) NextCode(ctx context.Context, prefix string, width int) (string, error) {
	for counter := 1; ; counter++ {
		code := fmt.Sprintf("%s%0*d", prefix, width, counter)
		exists, err := r.ExistsByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

// UpdateStatus moves a transaction along the state machine with a guarded
// conditional UPDATE. Zero rows affected means the row was no longer in
// fromStatus, i.e. someone else already moved it.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, code, fromStatus, toStatus string) error {
	return r.UpdateStatusAndNotes(ctx, tx, code, fromStatus, toStatus, "")
}

// UpdateStatusAndNotes is UpdateStatus plus an optional notes replacement in
// the same statement, used by approve/reject to persist the audit line
// atomically with the transition.
func (r *TransactionRepository) UpdateStatusAndNotes(ctx context.Context, tx *gorm.DB, code, fromStatus, toStatus, notes string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrInvalidStateTransition
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if notes != "" {
		updates["notes"] = notes
	}

	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("code = ? AND status = ?", code, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}
	return nil
}

func (r *TransactionRepository) CountByUserAndType(ctx context.Context, userID int64, txnType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("user_id = ? AND type = ?", userID, txnType).
		Count(&count).Error
	return count, err
}

// CountByUserAndTypeBefore counts the user's transactions of a type created
// strictly before the given instant. Refund recomputation uses this so the
// "first withdrawal" predicate is evaluated as of creation time, not now.
func (r *TransactionRepository) CountByUserAndTypeBefore(ctx context.Context, userID int64, txnType string, before time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("user_id = ? AND type = ? AND created_at < ?", userID, txnType, before).
		Count(&count).Error
	return count, err
}

func (r *TransactionRepository) CountByUserTypeSince(ctx context.Context, userID int64, txnType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, txnType, since).
		Count(&count).Error
	return count, err
}

func (r *TransactionRepository) CountByUserTypeStatusSince(ctx context.Context, userID int64, txnType, status string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("user_id = ? AND type = ? AND status = ? AND created_at >= ?", userID, txnType, status, since).
		Count(&count).Error
	return count, err
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var txns []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txns).Error

	return txns, total, err
}

// GetExpiredPendingPurchases returns PENDING coin top-ups and document
// purchases whose payment window has lapsed; the timeout job fails them. The
// scan covers downloads too, so a charge that died mid-flight cannot leave a
// PENDING row behind forever.
func (r *TransactionRepository) GetExpiredPendingPurchases(ctx context.Context, limit int) ([]*model.Transaction, error) {
	var txns []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("type IN ? AND status = ? AND expired_at IS NOT NULL AND expired_at < ?",
			[]string{model.TransactionTypePurchase, model.TransactionTypeDocumentDownload},
			model.TransactionStatusPending, time.Now()).
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *TransactionRepository) UpdatePaymentMethod(ctx context.Context, code, paymentMethod string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("code = ?", code).
		Update("payment_method", paymentMethod)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
