package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TransactionTypePurchase         = "PURCHASE"
	TransactionTypeWithdrawal       = "WITHDRAWAL"
	TransactionTypeRefund           = "REFUND"
	TransactionTypeDocumentDownload = "DOCUMENT_DOWNLOAD"
)

const (
	TransactionStatusPending    = "PENDING"
	TransactionStatusProcessing = "PROCESSING"
	TransactionStatusCompleted  = "COMPLETED"
	TransactionStatusFailed     = "FAILED"
	TransactionStatusCancelled  = "CANCELLED"
)

// ValidStatusTransitions is the ledger state machine. COMPLETED, FAILED and
// CANCELLED are terminal: they have no outgoing edges, so any attempt to
// leave them is rejected. CANCELLED is additionally restricted to
// withdrawals at the service layer.
var ValidStatusTransitions = map[string][]string{
	TransactionStatusPending: {
		TransactionStatusProcessing,
		TransactionStatusCompleted,
		TransactionStatusFailed,
		TransactionStatusCancelled,
	},
	TransactionStatusProcessing: {
		TransactionStatusCompleted,
		TransactionStatusFailed,
	},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	switch status {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// Payment method tags. Free text on the wire, but the service layer only
// ever writes these values.
const (
	PaymentMethodVNPay        = "VNPAY"
	PaymentMethodQRBanking    = "QR_BANKING"
	PaymentMethodCoinBalance  = "COIN_BALANCE"
	PaymentMethodBankTransfer = "BANK_TRANSFER"
	PaymentMethodDocumentSale = "DOCUMENT_SALE"
)

// Transaction is one financial event on a user's coin ledger. A row is
// created PENDING, moved exactly once to a terminal status, and never
// physically deleted (soft delete via DeletedAt only).
//
// Fee records the withdrawal fee charged at creation time. The fee inputs
// (first-withdrawal status, promo flag) are time-varying, so the charged
// value is persisted here rather than recomputed at refund time.
type Transaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Type          string          `gorm:"type:varchar(20);index;not null" json:"type"`
	Status        string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Fee           decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"fee"`
	PaymentMethod string          `gorm:"type:varchar(32);not null" json:"payment_method"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	Notes         string          `gorm:"type:text" json:"notes"`
	ExpiredAt     *time.Time      `json:"expired_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
