package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gepvi/gepvi-users/internal/api"
	v1 "github.com/gepvi/gepvi-users/internal/api/v1"
	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/domain/catalog"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/httpclient"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa/webhook"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
	"github.com/gepvi/gepvi-users/internal/pubsub/memory"
	pubsubRouter "github.com/gepvi/gepvi-users/internal/pubsub/router"
	"github.com/gepvi/gepvi-users/internal/repository"
	"github.com/gepvi/gepvi-users/internal/sentry"
	"github.com/gepvi/gepvi-users/internal/service"
	"github.com/gepvi/gepvi-users/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// @title Gepvi Users API
// @version 1.0
// @description User entitlements and YooKassa payments for the GepCalories bot
// @BasePath /v1
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// DTO validation goes through the shared instance
	validator.NewValidator()

	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Postgres
			postgres.NewDB,
			postgres.NewSentryClient,

			// Catalog
			catalog.New,

			// HTTP Client
			httpclient.NewDefaultClient,

			// Payment gateway
			yookassa.NewClient,
			webhook.NewVerifier,

			// Repositories
			repository.NewEntitlementRepository,
			repository.NewPaymentIntentRepository,
			repository.NewWebhookRecordRepository,

			// PubSub
			memory.NewPubSub,
			pubsubRouter.NewRouter,
		),
		sentry.Module(),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewEntitlementService,
			service.NewQuotaService,
			service.NewPaymentService,
			service.NewAuditService,
			service.NewWebhookService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			registerDBHooks,
			startAuditConsumer,
			startAPIServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideHandlers(
	db postgres.IClient,
	logger *logger.Logger,
	entitlementService service.EntitlementService,
	quotaService service.QuotaService,
	paymentService service.PaymentService,
	webhookService service.WebhookService,
	auditService service.AuditService,
) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(db, logger),
		User:    v1.NewUserHandler(entitlementService, quotaService, logger),
		Payment: v1.NewPaymentHandler(paymentService, logger),
		Webhook: v1.NewWebhookHandler(webhookService, auditService, logger),
	}
}

func registerDBHooks(lc fx.Lifecycle, db *postgres.DB, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database connection")
			db.Close()
			return nil
		},
	})
}

// startAuditConsumer drains the audit topic when audit records are written
// asynchronously. The router must be subscribed before the server accepts
// webhooks, otherwise records published in between are lost.
func startAuditConsumer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *pubsubRouter.Router,
	params service.ServiceParams,
	auditService service.AuditService,
	log *logger.Logger,
) {
	if !cfg.Audit.Async {
		log.Info("audit records are written synchronously")
		return
	}

	router.AddNoPublishHandler("webhook_audit", cfg.Audit.Topic, params.AuditPubSub, auditService.HandleMessage)

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(runCtx); err != nil {
					log.Errorw("message router failed", "error", err)
				}
			}()

			select {
			case <-router.Running():
				log.Infow("audit consumer started", "topic", cfg.Audit.Topic)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return router.Close()
		},
	})
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !ierr.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down API server")
			return srv.Shutdown(ctx)
		},
	})
}
