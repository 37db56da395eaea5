package service

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"edushare/internal/model"
	"edushare/internal/repository"
)

type AccountService struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
	txnRepo  *repository.TransactionRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		db:       db,
		userRepo: repository.NewUserRepository(db),
		txnRepo:  repository.NewTransactionRepository(db),
	}
}

type BalanceResponse struct {
	UserID              int64           `json:"user_id"`
	CoinBalance         decimal.Decimal `json:"coin_balance"`
	TotalSpent          decimal.Decimal `json:"total_spent"`
	TotalCoinsPurchased decimal.Decimal `json:"total_coins_purchased"`
}

type TransactionHistory struct {
	Items    []*model.Transaction `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (*BalanceResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		UserID:              user.ID,
		CoinBalance:         user.CoinBalance,
		TotalSpent:          user.TotalSpent,
		TotalCoinsPurchased: user.TotalCoinsPurchased,
	}, nil
}

func (s *AccountService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) (*TransactionHistory, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	txns, total, err := s.txnRepo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &TransactionHistory{
		Items:    txns,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
