package repository

import (
	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
	postgresRepo "github.com/gepvi/gepvi-users/internal/repository/postgres"
)

func NewEntitlementRepository(db *postgres.DB, logger *logger.Logger) entitlement.Repository {
	return postgresRepo.NewEntitlementRepository(db, logger)
}

func NewPaymentIntentRepository(db *postgres.DB, logger *logger.Logger) paymentintent.Repository {
	return postgresRepo.NewPaymentIntentRepository(db, logger)
}

func NewWebhookRecordRepository(db *postgres.DB, logger *logger.Logger) webhookrecord.Repository {
	return postgresRepo.NewWebhookRecordRepository(db, logger)
}
