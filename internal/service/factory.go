package service

import (
	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/domain/catalog"
	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa/webhook"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
	"github.com/gepvi/gepvi-users/internal/pubsub"
	"github.com/gepvi/gepvi-users/internal/sentry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger  *logger.Logger
	Config  *config.Configuration
	DB      postgres.IClient
	Sentry  *sentry.Service
	Catalog *catalog.Catalog

	// Repositories
	EntitlementRepo   entitlement.Repository
	PaymentIntentRepo paymentintent.Repository
	WebhookRecordRepo webhookrecord.Repository

	// Payment gateway
	Gateway         yookassa.Client
	WebhookVerifier *webhook.Verifier

	// AuditPubSub carries audit records when audit.async is enabled
	AuditPubSub pubsub.PubSub
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	sentry *sentry.Service,
	catalog *catalog.Catalog,
	entitlementRepo entitlement.Repository,
	paymentIntentRepo paymentintent.Repository,
	webhookRecordRepo webhookrecord.Repository,
	gateway yookassa.Client,
	webhookVerifier *webhook.Verifier,
	auditPubSub pubsub.PubSub,
) ServiceParams {
	return ServiceParams{
		Logger:            logger,
		Config:            config,
		DB:                db,
		Sentry:            sentry,
		Catalog:           catalog,
		EntitlementRepo:   entitlementRepo,
		PaymentIntentRepo: paymentIntentRepo,
		WebhookRecordRepo: webhookRecordRepo,
		Gateway:           gateway,
		WebhookVerifier:   webhookVerifier,
		AuditPubSub:       auditPubSub,
	}
}
