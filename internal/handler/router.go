package handler

import (
	"subbilling/internal/config"
	"subbilling/internal/event"
	"subbilling/internal/repository"
	"subbilling/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the HTTP surface. The webhook is the ingestion path
// for provider events; the rest are direct management endpoints.
func SetupRouter(store repository.Store, locker service.Locker, dispatcher *event.Dispatcher, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(store, locker, dispatcher, cfg)

	api := r.Group("/api/v1")
	{
		api.POST("/webhook", h.Webhook)
		api.POST("/checkout", h.Checkout)

		invoice := api.Group("/invoice")
		{
			invoice.GET("/:id", h.GetInvoice)
			invoice.POST("/:id/mark-paid", h.MarkInvoicePaid)
			invoice.POST("/:id/refund", h.RefundInvoice)
			invoice.POST("/:id/restore", h.RestoreInvoice)
		}

		subscription := api.Group("/subscription")
		{
			subscription.GET("/active", h.GetActiveSubscription)
			subscription.GET("/list", h.ListSubscriptions)
			subscription.GET("/expiring", h.ListExpiringSoon)
			subscription.GET("/proration", h.GetProration)
			subscription.POST("/activate", h.ActivateSubscription)
			subscription.POST("/cancel", h.CancelSubscription)
			subscription.POST("/pause", h.PauseSubscription)
			subscription.POST("/resume", h.ResumeSubscription)
			subscription.POST("/renew", h.RenewSubscription)
			subscription.POST("/upgrade", h.UpgradeSubscription)
			subscription.POST("/downgrade", h.DowngradeSubscription)
		}

		token := api.Group("/token")
		{
			token.GET("/balance", h.GetTokenBalance)
			token.GET("/transactions", h.ListTokenTransactions)
			token.POST("/spend", h.SpendTokens)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
