package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DetailTypeCoinPackage  = "coin_package"
	DetailTypeDocument     = "document"
	DetailTypeDocumentSale = "document_sale"
)

// TransactionDetail is a line item of a Transaction: a coin package bought,
// a document downloaded, or a seller's share of a document sale.
// CoinsReceived is what completeCoinPurchase sums when crediting a balance.
type TransactionDetail struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID int64           `gorm:"index;not null" json:"transaction_id"`
	DetailType    string          `gorm:"type:varchar(32);not null" json:"detail_type"`
	ReferenceID   int64           `gorm:"index" json:"reference_id"`
	Quantity      int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unit_price"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	CoinsReceived decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"coins_received"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (TransactionDetail) TableName() string {
	return "transaction_details"
}
