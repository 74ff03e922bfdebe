package postgres

import (
	"context"

	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/lib/pq"
)

const paymentIntentColumns = `intent_id, user_id, package_id, duration_days, amount, currency, description, return_url, gateway,
	gateway_payment_id, idempotency_key, status, failure_reason, requested_at, confirmed_at, failed_at, updated_at`

type paymentIntentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewPaymentIntentRepository creates a new instance of payment intent repository
func NewPaymentIntentRepository(db *postgres.DB, logger *logger.Logger) paymentintent.Repository {
	return &paymentIntentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *paymentIntentRepository) Create(ctx context.Context, p *paymentintent.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (` + paymentIntentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	err := r.db.WithMutationRetry(ctx, "payment_intent.create", func(ctx context.Context) error {
		_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
			p.ID,
			p.UserID,
			p.PackageID,
			p.DurationDays,
			p.Amount,
			p.Currency,
			p.Description,
			p.ReturnURL,
			p.Gateway,
			p.GatewayPaymentID,
			p.IdempotencyKey,
			p.Status,
			p.FailureReason,
			p.RequestedAt,
			p.ConfirmedAt,
			p.FailedAt,
			p.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Payment intent already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return dbError(err, "Failed to create payment intent")
	}
	return nil
}

func (r *paymentIntentRepository) Get(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE intent_id = $1`
	return r.getOne(ctx, "payment_intent.get", query, id)
}

func (r *paymentIntentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*paymentintent.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE gateway_payment_id = $1`
	return r.getOne(ctx, "payment_intent.get_by_gateway_id", query, gatewayPaymentID)
}

func (r *paymentIntentRepository) GetForUpdate(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	if _, ok := postgres.GetTx(ctx); !ok {
		return nil, ierr.NewError("row lock requested outside a transaction").
			WithHint("Internal error").
			Mark(ierr.ErrSystem)
	}
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE intent_id = $1 FOR UPDATE`
	return r.getOne(ctx, "payment_intent.get_for_update", query, id)
}

func (r *paymentIntentRepository) getOne(ctx context.Context, op, query string, arg string) (*paymentintent.PaymentIntent, error) {
	var p paymentintent.PaymentIntent
	err := r.db.WithRetry(ctx, op, func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).GetContext(ctx, &p, query, arg)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHint("Payment intent not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, dbError(err, "Failed to get payment intent")
	}
	return &p, nil
}

func (r *paymentIntentRepository) AttachGatewayPayment(ctx context.Context, id, gatewayPaymentID string) error {
	query := `
		UPDATE payment_intents
		SET gateway_payment_id = $2, updated_at = NOW()
		WHERE intent_id = $1 AND (gateway_payment_id IS NULL OR gateway_payment_id = $2)`

	var affected int64
	err := r.db.WithRetry(ctx, "payment_intent.attach_gateway_payment", func(ctx context.Context) error {
		res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, id, gatewayPaymentID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Gateway payment is already linked to another intent").
				Mark(ierr.ErrAlreadyExists)
		}
		return dbError(err, "Failed to update payment intent")
	}
	if affected == 0 {
		return ierr.NewError("gateway payment id mismatch").
			WithHint("Payment intent is linked to a different gateway payment").
			WithReportableDetails(map[string]any{"intent_id": id}).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

func (r *paymentIntentRepository) MarkUnsettled(ctx context.Context, t paymentintent.Transition) error {
	query := `
		UPDATE payment_intents
		SET status = $2,
			failure_reason = $3,
			failed_at = CASE WHEN $2::text = 'failed' THEN $4 ELSE failed_at END,
			updated_at = $4
		WHERE intent_id = $1 AND status = 'pending'`

	err := r.db.WithRetry(ctx, "payment_intent.mark_unsettled", func(ctx context.Context) error {
		_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, t.IntentID, t.To, t.FailureReason, t.At.UTC())
		return err
	})
	if err != nil {
		return dbError(err, "Failed to update payment intent")
	}
	return nil
}

func (r *paymentIntentRepository) TransitionFromOpen(ctx context.Context, t paymentintent.Transition) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = $2,
			failure_reason = COALESCE($3, failure_reason),
			confirmed_at = CASE WHEN $2::text = 'confirmed' THEN $4 ELSE confirmed_at END,
			failed_at = CASE WHEN $2::text = 'failed' THEN $4 ELSE failed_at END,
			updated_at = $4
		WHERE intent_id = $1 AND status = ANY($5)`

	open := pq.Array([]string{
		string(types.PaymentIntentStatusPending),
		string(types.PaymentIntentStatusUnknown),
	})

	var affected int64
	err := r.db.WithRetry(ctx, "payment_intent.transition", func(ctx context.Context) error {
		res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, t.IntentID, t.To, t.FailureReason, t.At.UTC(), open)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, dbError(err, "Failed to update payment intent")
	}
	return affected == 1, nil
}
