package job

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"edushare/internal/config"
	"edushare/internal/model"
	"edushare/internal/repository"
)

// PurchaseTimeoutJob fails PENDING coin purchases and document purchases
// whose payment window lapsed without a confirmation. The guarded status
// update means a late IPN racing this job can win exactly one of the two
// transitions.
type PurchaseTimeoutJob struct {
	db        *gorm.DB
	txnRepo   *repository.TransactionRepository
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewPurchaseTimeoutJob(db *gorm.DB, cfg *config.Config) *PurchaseTimeoutJob {
	return &PurchaseTimeoutJob{
		db:        db,
		txnRepo:   repository.NewTransactionRepository(db),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  30 * time.Second,
		batchSize: 100,
	}
}

func (j *PurchaseTimeoutJob) Start(ctx context.Context) {
	log.Println("[PurchaseTimeoutJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PurchaseTimeoutJob] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[PurchaseTimeoutJob] stopped")
			return
		case <-ticker.C:
			j.expirePendingPurchases(ctx)
		}
	}
}

func (j *PurchaseTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *PurchaseTimeoutJob) expirePendingPurchases(ctx context.Context) {
	txns, err := j.txnRepo.GetExpiredPendingPurchases(ctx, j.batchSize)
	if err != nil {
		log.Printf("[PurchaseTimeoutJob] query expired failed: %v", err)
		return
	}

	if len(txns) == 0 {
		return
	}

	expired := 0
	for _, txn := range txns {
		err := j.txnRepo.UpdateStatusAndNotes(ctx, nil, txn.Code,
			model.TransactionStatusPending, model.TransactionStatusFailed,
			"Hết hạn thanh toán")
		if err != nil {
			log.Printf("[PurchaseTimeoutJob] expire failed: code=%s err=%v", txn.Code, err)
			continue
		}
		expired++
		log.Printf("[PurchaseTimeoutJob] purchase expired: code=%s userID=%d", txn.Code, txn.UserID)
	}

	log.Printf("[PurchaseTimeoutJob] expired %d of %d candidates", expired, len(txns))
}
