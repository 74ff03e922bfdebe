package api

import (
	v1 "github.com/gepvi/gepvi-users/internal/api/v1"
	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/rest/middleware"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health  *v1.HealthHandler
	User    *v1.UserHandler
	Payment *v1.PaymentHandler
	Webhook *v1.WebhookHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// gin trusts every proxy unless told otherwise, which would let callers
	// pick their own ClientIP through X-Forwarded-For.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Errorw("invalid trusted proxies, forwarding headers are ignored",
			"trusted_proxies", cfg.Server.TrustedProxies,
			"error", err,
		)
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.LoggingMiddleware(logger),
		middleware.ErrorHandler(logger),
	)

	// Public routes
	router.GET("/health", handlers.Health.Health)

	// The gateway authenticates by signature and source address, not by key
	router.POST("/webhook/:provider_id", handlers.Webhook.HandleWebhook)

	v1Private := router.Group("/v1")
	v1Private.Use(middleware.APIKeyMiddleware(cfg, logger))

	users := v1Private.Group("/users")
	{
		users.POST("/get_or_create", handlers.User.GetOrCreate)
		users.GET("/:id", handlers.User.Get)
		users.POST("/:id/quota/consume", handlers.User.ConsumeQuota)
	}

	payments := v1Private.Group("/payments")
	{
		payments.POST("/create", handlers.Payment.CreatePayment)
		payments.GET("/packages", handlers.Payment.ListPackages)
		payments.GET("/intents/:id", handlers.Payment.GetPayment)
	}

	webhooks := v1Private.Group("/webhooks")
	{
		webhooks.GET("/records", handlers.Webhook.ListRecords)
	}

	return router
}
