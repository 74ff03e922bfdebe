package service

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa/webhook"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/samber/lo"
)

// WebhookDelivery is one inbound notification as received by the transport
type WebhookDelivery struct {
	ProviderName string
	Payload      []byte
	Headers      http.Header
	RemoteIP     string
	ReceivedAt   time.Time
}

// WebhookResult is the transport answer for a delivery. The status code
// tells the gateway whether to redeliver.
type WebhookResult struct {
	StatusCode int
	Outcome    types.WebhookOutcome
	Body       any
	IntentID   string
}

// WebhookService reconciles gateway notifications with local intents
type WebhookService interface {
	// HandleWebhook never fails: every problem becomes a result and an
	// audit record
	HandleWebhook(ctx context.Context, delivery *WebhookDelivery) *WebhookResult
}

type webhookService struct {
	ServiceParams
	audit AuditService
}

func NewWebhookService(params ServiceParams, audit AuditService) WebhookService {
	return &webhookService{
		ServiceParams: params,
		audit:         audit,
	}
}

func (s *webhookService) HandleWebhook(ctx context.Context, delivery *WebhookDelivery) *WebhookResult {
	if delivery.ReceivedAt.IsZero() {
		delivery.ReceivedAt = time.Now().UTC()
	}

	record := &webhookrecord.Record{
		ReceivedAt:   delivery.ReceivedAt,
		ProviderName: delivery.ProviderName,
		RawPayload:   rawPayload(delivery.Payload),
		RequestID:    types.GetRequestID(ctx),
		RemoteAddr:   delivery.RemoteIP,
	}

	result := s.reconcile(ctx, delivery, record)

	record.Outcome = result.Outcome
	record.ResponseCode = result.StatusCode
	if result.IntentID != "" {
		record.MatchedIntentID = lo.ToPtr(result.IntentID)
	}
	s.audit.Record(ctx, record)

	s.Logger.Infow("webhook handled",
		"provider", delivery.ProviderName,
		"event", record.EventType,
		"outcome", result.Outcome,
		"status", result.StatusCode,
		"intent_id", result.IntentID,
		"payment_id", lo.FromPtr(record.GatewayPaymentID),
	)
	return result
}

func (s *webhookService) reconcile(ctx context.Context, delivery *WebhookDelivery, record *webhookrecord.Record) *WebhookResult {
	if delivery.ProviderName != s.Config.Yookassa.ProviderID {
		err := ierr.NewErrorf("unknown webhook provider %q", delivery.ProviderName).
			WithHint("Unknown webhook provider").
			Mark(ierr.ErrNotFound)
		return s.reject(record, types.WebhookOutcomeRejectedUnknownProvider, http.StatusNotFound, err)
	}

	if s.WebhookVerifier != nil {
		if err := s.WebhookVerifier.Verify(delivery.RemoteIP, delivery.Payload, delivery.Headers); err != nil {
			return s.reject(record, types.WebhookOutcomeRejectedSignature, http.StatusUnauthorized, err)
		}
	}

	event, err := webhook.Parse(delivery.Payload)
	if err != nil {
		return s.reject(record, types.WebhookOutcomeRejectedMalformed, http.StatusBadRequest, err)
	}

	record.EventType = string(event.EventType())
	record.GatewayPaymentID = lo.ToPtr(event.PaymentID())

	switch e := event.(type) {
	case webhook.PaymentSucceeded:
		if result := s.confirmWithGateway(ctx, e.GatewayPaymentID, yookassa.PaymentStatusSucceeded, record); result != nil {
			return result
		}
		return s.settle(ctx, e.Correlation, record, func(ctx context.Context, intent *paymentintent.PaymentIntent) (types.WebhookOutcome, error) {
			return s.applySuccess(ctx, intent, e)
		})

	case webhook.PaymentCanceled:
		if result := s.confirmWithGateway(ctx, e.GatewayPaymentID, yookassa.PaymentStatusCanceled, record); result != nil {
			return result
		}
		return s.settle(ctx, e.Correlation, record, func(ctx context.Context, intent *paymentintent.PaymentIntent) (types.WebhookOutcome, error) {
			return s.applyFailure(ctx, intent, e)
		})

	default:
		s.Logger.Debugw("ignoring webhook event", "event", record.EventType)
		return ok(types.WebhookOutcomeIgnoredEvent, "")
	}
}

// settle locks the correlated intent and applies fn inside one transaction
func (s *webhookService) settle(
	ctx context.Context,
	corr webhook.Correlation,
	record *webhookrecord.Record,
	fn func(ctx context.Context, intent *paymentintent.PaymentIntent) (types.WebhookOutcome, error),
) *WebhookResult {
	var (
		outcome  types.WebhookOutcome
		intentID string
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		intent, err := s.correlate(ctx, corr)
		if err != nil {
			return err
		}
		intentID = intent.ID

		if !intent.IsOpen() {
			outcome = types.WebhookOutcomeDuplicateIgnored
			return nil
		}

		outcome, err = fn(ctx, intent)
		return err
	})
	if err != nil {
		if ierr.Is(err, ierr.ErrUnmatchedWebhook) {
			result := s.reject(record, types.WebhookOutcomeUnmatched, http.StatusNotFound, err)
			result.IntentID = intentID
			return result
		}

		s.Logger.Errorw("failed to reconcile webhook",
			"payment_id", corr.GatewayPaymentID,
			"intent_id", corr.IntentID,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{
			"payment_id": corr.GatewayPaymentID,
			"event":      record.EventType,
		})
		return s.reject(record, types.WebhookOutcomeRetryLater, http.StatusServiceUnavailable, err)
	}

	return ok(outcome, intentID)
}

// correlate finds the intent by gateway payment id, falling back to the
// intent id we put in the payment metadata. The returned intent is locked.
func (s *webhookService) correlate(ctx context.Context, corr webhook.Correlation) (*paymentintent.PaymentIntent, error) {
	intent, err := s.PaymentIntentRepo.GetByGatewayPaymentID(ctx, corr.GatewayPaymentID)
	if err == nil {
		return s.PaymentIntentRepo.GetForUpdate(ctx, intent.ID)
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	if corr.IntentID == "" {
		return nil, unmatched(corr, "no intent for gateway payment")
	}

	intent, err = s.PaymentIntentRepo.GetForUpdate(ctx, corr.IntentID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, unmatched(corr, "no intent for metadata intent_id")
		}
		return nil, err
	}

	if intent.GatewayPaymentID != nil && *intent.GatewayPaymentID != corr.GatewayPaymentID {
		s.Logger.Warnw("webhook payment does not belong to intent",
			"intent_id", intent.ID,
			"intent_payment_id", *intent.GatewayPaymentID,
			"payment_id", corr.GatewayPaymentID,
		)
		return nil, unmatched(corr, "intent is linked to another gateway payment")
	}

	if intent.GatewayPaymentID == nil {
		if err := s.PaymentIntentRepo.AttachGatewayPayment(ctx, intent.ID, corr.GatewayPaymentID); err != nil {
			return nil, err
		}
		intent.GatewayPaymentID = lo.ToPtr(corr.GatewayPaymentID)
		s.Logger.Infow("linked gateway payment through metadata",
			"intent_id", intent.ID,
			"payment_id", corr.GatewayPaymentID,
		)
	}

	return intent, nil
}

func (s *webhookService) applySuccess(ctx context.Context, intent *paymentintent.PaymentIntent, e webhook.PaymentSucceeded) (types.WebhookOutcome, error) {
	now := time.Now().UTC()

	if !e.Amount.IsZero() && (!e.Amount.Equal(intent.Amount) || e.Currency != intent.Currency) {
		err := ierr.NewError("webhook amount differs from intent").
			WithReportableDetails(map[string]any{
				"intent_id":        intent.ID,
				"intent_amount":    intent.Amount.String(),
				"webhook_amount":   e.Amount.String(),
				"intent_currency":  intent.Currency,
				"webhook_currency": e.Currency,
			}).
			Mark(ierr.ErrInvalidOperation)
		s.Logger.Warnw("confirming payment with mismatched amount",
			"intent_id", intent.ID,
			"intent_amount", intent.Amount,
			"webhook_amount", e.Amount,
			"currency", e.Currency,
		)
		s.Sentry.CaptureException(err)
	}

	applied, err := s.PaymentIntentRepo.TransitionFromOpen(ctx, paymentintent.Transition{
		IntentID: intent.ID,
		To:       types.PaymentIntentStatusConfirmed,
		At:       now,
	})
	if err != nil {
		return "", err
	}
	if !applied {
		return types.WebhookOutcomeDuplicateIgnored, nil
	}

	ent, err := s.EntitlementRepo.ExtendSubscription(ctx, intent.UserID, intent.Duration(), now)
	if err != nil {
		return "", err
	}

	s.Logger.Infow("subscription extended by payment",
		"intent_id", intent.ID,
		"user_id", intent.UserID,
		"package_id", intent.PackageID,
		"expires_at", lo.FromPtr(ent.SubscriptionExpiresAt),
	)
	s.Sentry.AddBreadcrumb("payment", "subscription extended", map[string]interface{}{
		"intent_id":  intent.ID,
		"user_id":    intent.UserID,
		"expires_at": lo.FromPtr(ent.SubscriptionExpiresAt),
	})
	return types.WebhookOutcomeApplied, nil
}

func (s *webhookService) applyFailure(ctx context.Context, intent *paymentintent.PaymentIntent, e webhook.PaymentCanceled) (types.WebhookOutcome, error) {
	applied, err := s.PaymentIntentRepo.TransitionFromOpen(ctx, paymentintent.Transition{
		IntentID:      intent.ID,
		To:            types.PaymentIntentStatusFailed,
		At:            time.Now().UTC(),
		FailureReason: lo.ToPtr(e.FailureReason()),
	})
	if err != nil {
		return "", err
	}
	if !applied {
		return types.WebhookOutcomeDuplicateIgnored, nil
	}

	s.Logger.Infow("payment canceled",
		"intent_id", intent.ID,
		"user_id", intent.UserID,
		"reason", e.FailureReason(),
	)
	return types.WebhookOutcomeAppliedFailure, nil
}

// confirmWithGateway re-reads the payment from the API when configured to
// and checks that the payment is in the state the notification claims. It
// returns nil when processing may continue.
func (s *webhookService) confirmWithGateway(ctx context.Context, paymentID, wantStatus string, record *webhookrecord.Record) *WebhookResult {
	if !s.Config.Yookassa.VerifyWithAPI {
		return nil
	}

	payment, err := s.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return s.reject(record, types.WebhookOutcomeRetryLater, http.StatusServiceUnavailable, err)
	}

	if payment.Status != wantStatus {
		err := ierr.NewErrorf("gateway reports payment status %q, notification says %q", payment.Status, wantStatus).
			WithHint("Payment is not confirmed by the provider").
			WithReportableDetails(map[string]any{"payment_id": payment.ID}).
			Mark(ierr.ErrInvalidSignature)
		return s.reject(record, types.WebhookOutcomeRejectedSignature, http.StatusUnauthorized, err)
	}
	return nil
}

func (s *webhookService) reject(record *webhookrecord.Record, outcome types.WebhookOutcome, status int, err error) *WebhookResult {
	record.ErrorMessage = lo.ToPtr(err.Error())
	return &WebhookResult{
		StatusCode: status,
		Outcome:    outcome,
		Body:       ierr.NewErrorResponse(displayMessage(err), nil),
	}
}

// rawPayload copies the body for the audit record. The column is NOT NULL,
// so a missing body is stored as empty.
func rawPayload(body []byte) []byte {
	if body == nil {
		return []byte{}
	}
	return bytes.Clone(body)
}

func ok(outcome types.WebhookOutcome, intentID string) *WebhookResult {
	return &WebhookResult{
		StatusCode: http.StatusOK,
		Outcome:    outcome,
		Body:       map[string]bool{"success": true},
		IntentID:   intentID,
	}
}

func unmatched(corr webhook.Correlation, reason string) error {
	return ierr.NewError(reason).
		WithHint("Payment not found").
		WithReportableDetails(map[string]any{
			"payment_id": corr.GatewayPaymentID,
			"intent_id":  corr.IntentID,
		}).
		Mark(ierr.ErrUnmatchedWebhook)
}

// displayMessage prefers the first hint, which is safe to show
func displayMessage(err error) string {
	if hints := ierr.GetHints(err); len(hints) > 0 {
		return hints[0]
	}
	return "Webhook could not be processed"
}
