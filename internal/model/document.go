package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	OwnershipTypeOwner = "owner"
	OwnershipTypeBuyer = "buyer"
	OwnershipTypeFree  = "free"
)

// Document is the minimal slice of the document catalog the purchase flow
// needs: a price and a download counter. Catalog administration lives in a
// different service.
type Document struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Title          string          `gorm:"type:varchar(255);not null" json:"title"`
	Price          decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"price"`
	DownloadsCount int64           `gorm:"not null;default:0" json:"downloads_count"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentOwner links a user to a document they can download. OwnershipType
// records how the link came to be: the uploader ("owner"), a paid purchase
// ("buyer") or a free grant ("free").
type DocumentOwner struct {
	UserID        int64     `gorm:"primaryKey" json:"user_id"`
	DocumentID    int64     `gorm:"primaryKey" json:"document_id"`
	OwnershipType string    `gorm:"type:varchar(16);not null" json:"ownership_type"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DocumentOwner) TableName() string {
	return "document_owners"
}
