package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"edushare/internal/config"
	"edushare/internal/repository"
	"edushare/internal/service"
	"edushare/pkg/response"
)

// Handler bundles all HTTP endpoints with their service dependencies.
type Handler struct {
	accountService     *service.AccountService
	transactionService *service.TransactionService
	withdrawalService  *service.WithdrawalService
	purchaseService    *service.PurchaseService
	paymentService     *service.PaymentService
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	settings := service.NewSettingsService(&cfg.Withdrawal)
	txnSvc := service.NewTransactionService(db, cfg)
	return &Handler{
		accountService:     service.NewAccountService(db),
		transactionService: txnSvc,
		withdrawalService:  service.NewWithdrawalService(db, rdb, cfg, settings),
		purchaseService:    service.NewPurchaseService(db, rdb, cfg),
		paymentService:     service.NewPaymentService(db, rdb, cfg, txnSvc),
	}
}

// handleServiceError translates service and repository sentinels into the
// response envelope's business codes.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		response.BusinessError(c, response.CodeUserNotFound, "user not found")
	case errors.Is(err, repository.ErrTransactionNotFound):
		response.BusinessError(c, response.CodeTransactionNotFound, "transaction not found")
	case errors.Is(err, repository.ErrInsufficientCoins):
		response.BusinessError(c, response.CodeInsufficientCoins, "insufficient coin balance")
	case errors.Is(err, repository.ErrInvalidStateTransition):
		response.BusinessError(c, response.CodeInvalidStatus, "invalid status transition")
	case errors.Is(err, repository.ErrDocumentNotFound):
		response.BusinessError(c, response.CodeDocumentNotFound, "document not found")
	case errors.Is(err, service.ErrAmountOutOfRange):
		response.BusinessError(c, response.CodeAmountOutOfRange, err.Error())
	case errors.Is(err, service.ErrUserNotActive),
		errors.Is(err, service.ErrNotOwner):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrNotWithdrawal),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrAlreadyProcessed):
		response.BusinessError(c, response.CodeInvalidStatus, err.Error())
	case errors.Is(err, service.ErrLockNotAcquired):
		response.BusinessError(c, response.CodeDuplicateRequest, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// GetBalance returns the user's coin balance and lifetime totals.
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user_id")
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, balance)
}

// ListTransactions returns the user's ledger history, newest first.
// GET /api/v1/account/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user_id")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	history, err := h.accountService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, history)
}

// CreateTopup opens a pending coin purchase.
// POST /api/v1/topup/create
func (h *Handler) CreateTopup(c *gin.Context) {
	var req service.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.transactionService.CreatePurchase(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// CreateVNPayURL returns the hosted-checkout redirect URL for a pending
// purchase.
// POST /api/v1/topup/vnpay
func (h *Handler) CreateVNPayURL(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	payURL, err := h.paymentService.CreateVNPayURL(c.Request.Context(), req.Code, c.ClientIP())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"pay_url": payURL})
}

// CreateQRPayment returns the VietQR image URL for a pending purchase.
// POST /api/v1/topup/qr
func (h *Handler) CreateQRPayment(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	qrURL, err := h.paymentService.CreateQRPayment(c.Request.Context(), req.Code)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"qr_url": qrURL})
}

// PreviewWithdrawal quotes fee, risk and ETA without creating anything.
// POST /api/v1/withdrawals/preview
func (h *Handler) PreviewWithdrawal(c *gin.Context) {
	var req struct {
		UserID int64           `json:"user_id" binding:"required"`
		Amount decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	quote, err := h.withdrawalService.Preview(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, quote)
}

// CreateWithdrawal creates a withdrawal and deducts the coins.
// POST /api/v1/withdrawals
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req service.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.withdrawalService.Create(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// CancelWithdrawal is the user-initiated cancellation of a PENDING
// withdrawal.
// POST /api/v1/withdrawals/:code/cancel
func (h *Handler) CancelWithdrawal(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	code := c.Param("code")
	if err := h.withdrawalService.Cancel(c.Request.Context(), req.UserID, code); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"code": code, "status": "CANCELLED"})
}

// ApproveWithdrawal is the admin approval; funds were deducted at creation.
// POST /api/v1/withdrawals/:code/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	code := c.Param("code")
	if err := h.withdrawalService.Approve(c.Request.Context(), code); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"code": code, "status": "COMPLETED"})
}

// RejectWithdrawal fails a withdrawal and refunds amount plus fee.
// POST /api/v1/withdrawals/:code/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	code := c.Param("code")
	if err := h.withdrawalService.Reject(c.Request.Context(), code, req.Reason); err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"code": code, "status": "FAILED"})
}

// DownloadDocument runs the buy-or-use-free document access flow.
// POST /api/v1/documents/:id/download
func (h *Handler) DownloadDocument(c *gin.Context) {
	documentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid document id")
		return
	}
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.purchaseService.ProcessDocumentDownload(c.Request.Context(), req.UserID, documentID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}
