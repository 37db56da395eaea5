package repository

import (
	"context"
	"errors"

	"edushare/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientCoins  = errors.New("insufficient coin balance")
	ErrConcurrentMutation = errors.New("concurrent balance mutation, retry")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// DeductCoins performs the balance check and the deduction as a single
// conditional UPDATE, so a concurrent deduction can never drive the balance
// below zero. Zero rows affected means either the balance was short or the
// user is gone; the follow-up read tells them apart.
func (r *UserRepository) DeductCoins(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND coin_balance >= ?", userID, amount).
		Update("coin_balance", gorm.Expr("coin_balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		user, err := r.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.CoinBalance.LessThan(amount) {
			return ErrInsufficientCoins
		}
		return ErrConcurrentMutation
	}

	return nil
}

func (r *UserRepository) CreditCoins(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("coin_balance", gorm.Expr("coin_balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ApplyPurchaseTotals bumps the lifetime counters alongside a completed coin
// purchase: amount paid into total_spent, coins credited into
// total_coins_purchased.
func (r *UserRepository) ApplyPurchaseTotals(ctx context.Context, tx *gorm.DB, userID int64, amountPaid, coins decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"total_spent":           gorm.Expr("total_spent + ?", amountPaid),
			"total_coins_purchased": gorm.Expr("total_coins_purchased + ?", coins),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
