package service

import (
	"context"
	"errors"
	"fmt"
	"log"
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

// Seller revenue split on a paid document download.
var sellerShareRate = decimal.NewFromFloat(0.85)

// PurchaseService is the document download orchestrator. One call either
// serves an already-owned document, grants a free one, or charges the
// buyer, pays the seller and grants ownership, all with ownership-based
// idempotency.
type PurchaseService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	txnRepo     *repository.TransactionRepository
	detailRepo  *repository.TransactionDetailRepository
	userRepo    *repository.UserRepository
	docRepo     *repository.DocumentRepository
}

func NewPurchaseService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PurchaseService {
	return &PurchaseService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		txnRepo:     repository.NewTransactionRepository(db),
		detailRepo:  repository.NewTransactionDetailRepository(db),
		userRepo:    repository.NewUserRepository(db),
		docRepo:     repository.NewDocumentRepository(db),
	}
}

type DownloadResult struct {
	DocumentID int64           `json:"document_id"`
	Charged    bool            `json:"charged"`
	Price      decimal.Decimal `json:"price"`
	Code       string          `json:"code,omitempty"`
	Ownership  string          `json:"ownership"`
}

// ProcessDocumentDownload serves one download request end to end.
//
// Owned documents only bump the download counter. Free documents grant
// ownership without a ledger entry. Paid ones charge the buyer once: a
// prior COMPLETED purchase of the same document short-circuits to
// already-owned instead of re-charging.
func (s *PurchaseService) ProcessDocumentDownload(ctx context.Context, userID, documentID int64) (*DownloadResult, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrUserNotActive
	}

	pLock := lock.NewPurchaseLock(s.redisClient, userID, documentID, idgen.NewLockToken())
	if err := pLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, ErrLockNotAcquired
	}
	defer pLock.Unlock(ctx)

	owner, err := s.docRepo.GetOwnership(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		if err := s.docRepo.IncrementDownloads(ctx, nil, documentID); err != nil {
			return nil, err
		}
		return &DownloadResult{DocumentID: documentID, Charged: false, Price: doc.Price, Ownership: owner.OwnershipType}, nil
	}

	if !doc.Price.IsPositive() {
		return s.grantFree(ctx, userID, documentID, doc)
	}

	if user.CoinBalance.LessThan(doc.Price) {
		return nil, repository.ErrInsufficientCoins
	}

	// A completed purchase without an ownership row means a previous run
	// died between the charge and the grant; repair instead of re-charging.
	purchased, err := s.detailRepo.ExistsCompletedDocumentPurchase(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if purchased {
		if err := s.repairOwnership(ctx, userID, documentID); err != nil {
			return nil, err
		}
		return &DownloadResult{DocumentID: documentID, Charged: false, Price: doc.Price, Ownership: model.OwnershipTypeBuyer}, nil
	}

	return s.chargeAndGrant(ctx, user, doc)
}

func (s *PurchaseService) grantFree(ctx context.Context, userID, documentID int64, doc *model.Document) (*DownloadResult, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		owner := &model.DocumentOwner{
			UserID:        userID,
			DocumentID:    documentID,
			OwnershipType: model.OwnershipTypeFree,
		}
		if err := s.docRepo.SaveOwnership(ctx, tx, owner); err != nil {
			return err
		}
		return s.docRepo.IncrementDownloads(ctx, tx, documentID)
	})
	if err != nil {
		return nil, err
	}
	return &DownloadResult{DocumentID: documentID, Charged: false, Price: doc.Price, Ownership: model.OwnershipTypeFree}, nil
}

func (s *PurchaseService) repairOwnership(ctx context.Context, userID, documentID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		owner := &model.DocumentOwner{
			UserID:        userID,
			DocumentID:    documentID,
			OwnershipType: model.OwnershipTypeBuyer,
		}
		if err := s.docRepo.SaveOwnership(ctx, tx, owner); err != nil {
			return err
		}
		return s.docRepo.IncrementDownloads(ctx, tx, documentID)
	})
}

// chargeAndGrant runs the paid path: a PENDING download transaction is
// committed first, then one database transaction deducts the price,
// records the line items, credits the seller's share and flips the
// transaction COMPLETED. Any failure rolls the charge back and the
// transaction is marked FAILED.
func (s *PurchaseService) chargeAndGrant(ctx context.Context, user *model.User, doc *model.Document) (*DownloadResult, error) {
	code, err := s.txnRepo.NextCode(ctx, purchaseCodePrefix, purchaseCodeWidth)
	if err != nil {
		return nil, fmt.Errorf("generate transaction code: %w", err)
	}

	// The expiry covers a crash between this insert and the charge below:
	// the timeout job fails the orphaned PENDING row once the window lapses.
	expiredAt := time.Now().Add(time.Duration(s.cfg.Withdrawal.PendingPurchaseExpiry) * time.Minute)

	txn := &model.Transaction{
		Code:          code,
		Type:          model.TransactionTypeDocumentDownload,
		Status:        model.TransactionStatusPending,
		Amount:        doc.Price,
		PaymentMethod: model.PaymentMethodCoinBalance,
		UserID:        user.ID,
		Notes:         fmt.Sprintf("Mua tài liệu #%d: %s", doc.ID, doc.Title),
		ExpiredAt:     &expiredAt,
	}
	if err := s.txnRepo.Create(ctx, nil, txn); err != nil {
		return nil, fmt.Errorf("create download transaction: %w", err)
	}

	sellerID, err := s.docRepo.FindSeller(ctx, doc.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrDocumentNotFound) {
			s.markFailed(ctx, code, err.Error())
			return nil, err
		}
		// No owner row: platform-published document, nobody to pay.
		sellerID = 0
	}

	sellerShare := doc.Price.Mul(sellerShareRate).Round(2)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.DeductCoins(ctx, tx, user.ID, doc.Price); err != nil {
			return err
		}

		detail := &model.TransactionDetail{
			TransactionID: txn.ID,
			DetailType:    model.DetailTypeDocument,
			ReferenceID:   doc.ID,
			Quantity:      1,
			UnitPrice:     doc.Price,
			Amount:        doc.Price,
		}
		if err := s.detailRepo.Create(ctx, tx, detail); err != nil {
			return fmt.Errorf("create download detail: %w", err)
		}

		// The platform keeps the remaining 15% as commission.
		if sellerID != 0 && sellerID != user.ID {
			if err := s.userRepo.CreditCoins(ctx, tx, sellerID, sellerShare); err != nil {
				return fmt.Errorf("credit seller: %w", err)
			}
			saleDetail := &model.TransactionDetail{
				TransactionID: txn.ID,
				DetailType:    model.DetailTypeDocumentSale,
				ReferenceID:   sellerID,
				Quantity:      1,
				UnitPrice:     sellerShare,
				Amount:        sellerShare,
				CoinsReceived: sellerShare,
			}
			if err := s.detailRepo.Create(ctx, tx, saleDetail); err != nil {
				return fmt.Errorf("create sale detail: %w", err)
			}
		}

		owner := &model.DocumentOwner{
			UserID:        user.ID,
			DocumentID:    doc.ID,
			OwnershipType: model.OwnershipTypeBuyer,
		}
		if err := s.docRepo.SaveOwnership(ctx, tx, owner); err != nil {
			return err
		}
		if err := s.docRepo.IncrementDownloads(ctx, tx, doc.ID); err != nil {
			return err
		}

		return s.txnRepo.UpdateStatus(ctx, tx, code,
			model.TransactionStatusPending, model.TransactionStatusCompleted)
	})
	if err != nil {
		s.markFailed(ctx, code, err.Error())
		return nil, err
	}

	log.Printf("[Purchase] document bought: code=%s userID=%d docID=%d price=%s sellerID=%d",
		code, user.ID, doc.ID, doc.Price.String(), sellerID)

	return &DownloadResult{
		DocumentID: doc.ID,
		Charged:    true,
		Price:      doc.Price,
		Code:       code,
		Ownership:  model.OwnershipTypeBuyer,
	}, nil
}

func (s *PurchaseService) markFailed(ctx context.Context, code, reason string) {
	err := s.txnRepo.UpdateStatusAndNotes(ctx, nil, code,
		model.TransactionStatusPending, model.TransactionStatusFailed,
		fmt.Sprintf("Mua tài liệu thất bại: %s", reason))
	if err != nil {
		log.Printf("[Purchase] mark failed error: code=%s err=%v", code, err)
	}
}
