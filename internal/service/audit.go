package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/gepvi/gepvi-users/internal/api/dto"
	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/samber/lo"
)

const (
	defaultAuditListLimit = 50
	maxAuditListLimit     = 500

	// auditWriteTimeout bounds a detached audit write
	auditWriteTimeout = 10 * time.Second
)

// AuditService keeps the append-only log of webhook deliveries
type AuditService interface {
	// Record stores one delivery. It is best effort: failures are logged and
	// reported, never returned.
	Record(ctx context.Context, record *webhookrecord.Record)

	// Store writes a record with bounded retries
	Store(ctx context.Context, record *webhookrecord.Record) error

	// HandleMessage consumes a record published on the audit topic
	HandleMessage(msg *message.Message) error

	ListRecent(ctx context.Context, limit int) (*dto.ListResponse[dto.WebhookRecordResponse], error)
	ListByIntent(ctx context.Context, intentID string) (*dto.ListResponse[dto.WebhookRecordResponse], error)
}

type auditService struct {
	ServiceParams
}

func NewAuditService(params ServiceParams) AuditService {
	return &auditService{
		ServiceParams: params,
	}
}

func (s *auditService) Record(ctx context.Context, record *webhookrecord.Record) {
	// the request may finish before the record is written
	ctx = context.WithoutCancel(ctx)

	if s.Config.Audit.Async && s.AuditPubSub != nil {
		err := s.publish(ctx, record)
		if err == nil {
			return
		}
		s.Logger.Warnw("failed to publish audit record, writing inline",
			"outcome", record.Outcome,
			"error", err,
		)
	}

	ctx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
	defer cancel()

	if err := s.Store(ctx, record); err != nil {
		s.reportLost(record, err)
	}
}

func (s *auditService) publish(ctx context.Context, record *webhookrecord.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode audit record").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("request_id", record.RequestID)
	msg.Metadata.Set("outcome", string(record.Outcome))
	return s.AuditPubSub.Publish(ctx, s.Config.Audit.Topic, msg)
}

func (s *auditService) Store(ctx context.Context, record *webhookrecord.Record) error {
	if err := record.Outcome.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid audit record").
			Mark(ierr.ErrValidation)
	}

	attempts := 0
	op := func() error {
		attempts++
		err := s.WebhookRecordRepo.Append(ctx, record)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		s.Logger.Warnw("audit write failed, retrying",
			"attempt", attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, s.newBackOff(ctx), notify); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to store webhook record").
			WithReportableDetails(map[string]any{"attempts": attempts}).
			Mark(ierr.ErrStorageUnavailable)
	}
	return nil
}

func (s *auditService) newBackOff(ctx context.Context) backoff.BackOff {
	cfg := s.Config.Postgres.Retry
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	if cfg.MaxElapsedTime > 0 {
		b.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)
}

func (s *auditService) HandleMessage(msg *message.Message) error {
	var record webhookrecord.Record
	if err := json.Unmarshal(msg.Payload, &record); err != nil {
		// redelivery cannot fix a bad payload
		s.Logger.Errorw("dropping unreadable audit message",
			"message_uuid", msg.UUID,
			"error", err,
		)
		return nil
	}

	ctx := types.SetRequestID(msg.Context(), record.RequestID)
	if err := s.WebhookRecordRepo.Append(ctx, &record); err != nil {
		return err
	}
	return nil
}

func (s *auditService) reportLost(record *webhookrecord.Record, err error) {
	s.Logger.Errorw("webhook audit record lost",
		"provider", record.ProviderName,
		"event", record.EventType,
		"outcome", record.Outcome,
		"request_id", record.RequestID,
		"error", err,
	)
	s.Sentry.CaptureExceptionWithTags(err, map[string]string{
		"component": "webhook_audit",
		"outcome":   string(record.Outcome),
	})
}

func (s *auditService) ListRecent(ctx context.Context, limit int) (*dto.ListResponse[dto.WebhookRecordResponse], error) {
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	limit = lo.Min([]int{limit, maxAuditListLimit})

	records, err := s.WebhookRecordRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toRecordList(records), nil
}

func (s *auditService) ListByIntent(ctx context.Context, intentID string) (*dto.ListResponse[dto.WebhookRecordResponse], error) {
	records, err := s.WebhookRecordRepo.ListByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return toRecordList(records), nil
}

func toRecordList(records []*webhookrecord.Record) *dto.ListResponse[dto.WebhookRecordResponse] {
	return dto.NewListResponse(lo.Map(records, func(r *webhookrecord.Record, _ int) dto.WebhookRecordResponse {
		return dto.NewWebhookRecordResponse(r)
	}))
}
