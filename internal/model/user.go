package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	UserStatusActive = "active"
	UserStatusBanned = "banned"
	UserStatusLocked = "locked"
)

// User carries the coin balance and the lifetime purchase counters the fee
// engine reads. CoinBalance is mutated only through UserRepository inside a
// database transaction; it must never be observable below zero.
type User struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Username            string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email               string          `gorm:"type:varchar(128)" json:"email"`
	FullName            string          `gorm:"type:varchar(128)" json:"full_name"`
	Status              string          `gorm:"type:varchar(20);not null;default:active" json:"status"`
	CoinBalance         decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"coin_balance"`
	TotalSpent          decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_spent"`
	TotalCoinsPurchased decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_coins_purchased"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
