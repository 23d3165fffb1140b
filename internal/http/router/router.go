package router

import (
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/career-marketplace/internal/config"
	"github.com/ignatzorin/career-marketplace/internal/http/handlers"
	"github.com/ignatzorin/career-marketplace/internal/http/middleware"
	"github.com/ignatzorin/career-marketplace/internal/models"
)

func SetupRouter(
	cfg *config.Config,
	limitStore limiter.Store,
	tokens middleware.TokenParser,
	taskHandler *handlers.TaskHandler,
	bidHandler *handlers.BidHandler,
	paymentHandler *handlers.PaymentHandler,
	disputeHandler *handlers.DisputeHandler,
	payoutHandler *handlers.PayoutHandler,
	webhookHandler *handlers.WebhookHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Провайдер подписывает события сам, JWT здесь нет.
	api.POST("/webhooks/stripe/:family", webhookHandler.HandleStripe)
	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokens))
	protected.Use(middleware.RateLimitMiddleware(limitStore, "api", cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		protected.GET("/tasks", taskHandler.ListOpenTasks)
		protected.POST("/tasks", taskHandler.CreateTask)
		protected.GET("/tasks/my", taskHandler.ListMyTasks)
		protected.GET("/tasks/assigned", taskHandler.ListAssignedTasks)
		protected.GET("/tasks/:id", middleware.UUIDValidator("id"), taskHandler.GetTask)
		protected.POST("/tasks/:id/start", middleware.UUIDValidator("id"), taskHandler.StartTask)
		protected.POST("/tasks/:id/complete", middleware.UUIDValidator("id"), taskHandler.CompleteTask)
		protected.POST("/tasks/:id/release", middleware.UUIDValidator("id"), taskHandler.ReleaseTask)

		protected.GET("/tasks/:id/bids", middleware.UUIDValidator("id"), bidHandler.ListBids)
		protected.POST("/tasks/:id/bids", middleware.UUIDValidator("id"), bidHandler.CreateBid)
		protected.POST("/tasks/:id/bids/:bidId/accept", middleware.UUIDValidator("id", "bidId"), bidHandler.AcceptBid)

		protected.GET("/tasks/:id/payments", middleware.UUIDValidator("id"), paymentHandler.ListPayments)
		protected.POST("/tasks/:id/payment-intent", middleware.UUIDValidator("id"), paymentHandler.CreatePaymentIntent)
		protected.POST("/tasks/:id/escrow", middleware.UUIDValidator("id"), paymentHandler.HoldPayment)

		protected.GET("/tasks/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.GetDispute)
		protected.POST("/tasks/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.OpenDispute)
		protected.GET("/disputes/my", disputeHandler.ListMyDisputes)

		protected.GET("/payouts/my", payoutHandler.ListMyPayouts)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/:id", middleware.UUIDValidator("id"), notificationHandler.GetNotification)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/payouts", payoutHandler.ListPayouts)
		admin.POST("/payouts/:id/retry", middleware.UUIDValidator("id"), payoutHandler.RetryPayout)
	}

	return r
}
