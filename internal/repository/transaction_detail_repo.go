package repository

import (
	"context"

	"edushare/internal/model"

	"gorm.io/gorm"
)

type TransactionDetailRepository struct {
	db *gorm.DB
}

func NewTransactionDetailRepository(db *gorm.DB) *TransactionDetailRepository {
	return &TransactionDetailRepository{db: db}
}

func (r *TransactionDetailRepository) Create(ctx context.Context, tx *gorm.DB, detail *model.TransactionDetail) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(detail).Error
}

func (r *TransactionDetailRepository) ListByTransactionID(ctx context.Context, tx *gorm.DB, transactionID int64) ([]*model.TransactionDetail, error) {
	if tx == nil {
		tx = r.db
	}
	var details []*model.TransactionDetail
	err := tx.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Find(&details).Error
	return details, err
}

// ExistsCompletedDocumentPurchase reports whether the user already paid for
// the document in a COMPLETED transaction. The download flow treats such a
// user as an owner and never charges twice.
func (r *TransactionDetailRepository) ExistsCompletedDocumentPurchase(ctx context.Context, userID, documentID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TransactionDetail{}).
		Joins("JOIN transactions ON transactions.id = transaction_details.transaction_id").
		Where("transactions.user_id = ? AND transactions.status = ? AND transactions.deleted_at IS NULL", userID, model.TransactionStatusCompleted).
		Where("transaction_details.detail_type = ? AND transaction_details.reference_id = ?", model.DetailTypeDocument, documentID).
		Count(&count).Error
	return count > 0, err
}
