package postgres

import (
	"context"

	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
)

const webhookRecordColumns = `id, received_at, provider_name, event_type, raw_payload, outcome, response_code,
	matched_intent_id, gateway_payment_id, error_message, request_id, remote_addr`

type webhookRecordRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewWebhookRecordRepository(db *postgres.DB, logger *logger.Logger) webhookrecord.Repository {
	return &webhookRecordRepository{
		db:     db,
		logger: logger,
	}
}

// Append is a plain insert. It is never part of a reconciler transaction.
func (r *webhookRecordRepository) Append(ctx context.Context, rec *webhookrecord.Record) error {
	query := `
		INSERT INTO webhook_records (received_at, provider_name, event_type, raw_payload, outcome, response_code,
			matched_intent_id, gateway_payment_id, error_message, request_id, remote_addr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.db.GetQuerier(ctx).QueryRowxContext(ctx, query,
		rec.ReceivedAt.UTC(),
		rec.ProviderName,
		rec.EventType,
		rec.RawPayload,
		rec.Outcome,
		rec.ResponseCode,
		rec.MatchedIntentID,
		rec.GatewayPaymentID,
		rec.ErrorMessage,
		rec.RequestID,
		rec.RemoteAddr,
	).Scan(&rec.ID)
	if err != nil {
		return dbError(err, "Failed to store webhook record")
	}
	return nil
}

func (r *webhookRecordRepository) ListRecent(ctx context.Context, limit int) ([]*webhookrecord.Record, error) {
	query := `SELECT ` + webhookRecordColumns + ` FROM webhook_records ORDER BY received_at DESC, id DESC LIMIT $1`

	var records []*webhookrecord.Record
	err := r.db.WithRetry(ctx, "webhook_record.list_recent", func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).SelectContext(ctx, &records, query, limit)
	})
	if err != nil {
		return nil, dbError(err, "Failed to list webhook records")
	}
	return records, nil
}

func (r *webhookRecordRepository) ListByIntent(ctx context.Context, intentID string) ([]*webhookrecord.Record, error) {
	query := `SELECT ` + webhookRecordColumns + ` FROM webhook_records WHERE matched_intent_id = $1 ORDER BY id`

	var records []*webhookrecord.Record
	err := r.db.WithRetry(ctx, "webhook_record.list_by_intent", func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).SelectContext(ctx, &records, query, intentID)
	})
	if err != nil {
		return nil, dbError(err, "Failed to list webhook records")
	}
	return records, nil
}
