package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"edushare/internal/config"
)

func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		topup := api.Group("/topup")
		{
			topup.POST("/create", h.CreateTopup)
			topup.POST("/vnpay", h.CreateVNPayURL)
			topup.POST("/qr", h.CreateQRPayment)
		}

		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
		}

		withdrawals := api.Group("/withdrawals")
		{
			withdrawals.POST("", h.CreateWithdrawal)
			withdrawals.POST("/preview", h.PreviewWithdrawal)
			withdrawals.POST("/:code/cancel", h.CancelWithdrawal)
			withdrawals.POST("/:code/approve", h.ApproveWithdrawal)
			withdrawals.POST("/:code/reject", h.RejectWithdrawal)
		}

		documents := api.Group("/documents")
		{
			documents.POST("/:id/download", h.DownloadDocument)
		}
	}

	// Gateway callbacks live outside the API group; their paths are
	// registered with the gateway and must not change.
	payment := r.Group("/payment")
	{
		payment.GET("/vnpay/callback", h.VNPayIPN)
		payment.GET("/vnpay/return", h.VNPayReturn)
		payment.POST("/qr/callback", h.QRCallback)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
