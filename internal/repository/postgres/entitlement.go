package postgres

import (
	"context"
	"time"

	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
)

const entitlementColumns = `user_id, external_alias, free_quota_remaining, subscription_expires_at, created_at, updated_at`

type entitlementRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewEntitlementRepository creates a new instance of entitlement repository
func NewEntitlementRepository(db *postgres.DB, logger *logger.Logger) entitlement.Repository {
	return &entitlementRepository{
		db:     db,
		logger: logger,
	}
}

func (r *entitlementRepository) Get(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE user_id = $1`

	var e entitlement.Entitlement
	err := r.db.WithRetry(ctx, "entitlement.get", func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).GetContext(ctx, &e, query, userID)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("User %s not found", userID).
				Mark(ierr.ErrNotFound)
		}
		return nil, dbError(err, "Failed to get user")
	}
	return &e, nil
}

func (r *entitlementRepository) GetByAlias(ctx context.Context, alias string) (*entitlement.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE external_alias = $1`

	var e entitlement.Entitlement
	err := r.db.WithRetry(ctx, "entitlement.get_by_alias", func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).GetContext(ctx, &e, query, alias)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHint("User not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, dbError(err, "Failed to get user")
	}
	return &e, nil
}

func (r *entitlementRepository) CreateIfAbsent(ctx context.Context, e *entitlement.Entitlement) (bool, error) {
	// no conflict target: both the primary key and the alias are covered
	query := `
		INSERT INTO entitlements (user_id, external_alias, free_quota_remaining, subscription_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING user_id`

	created := false
	err := r.db.WithRetry(ctx, "entitlement.create", func(ctx context.Context) error {
		var id string
		err := r.db.GetQuerier(ctx).QueryRowxContext(ctx, query,
			e.UserID,
			e.ExternalAlias,
			e.FreeQuotaRemaining,
			e.SubscriptionExpiresAt,
			e.CreatedAt,
			e.UpdatedAt,
		).Scan(&id)
		if isNoRows(err) {
			created = false
			return nil
		}
		created = err == nil
		return err
	})
	if err != nil {
		return false, dbError(err, "Failed to create user")
	}

	if created {
		r.logger.Debugw("created entitlement",
			"user_id", e.UserID,
			"free_quota", e.FreeQuotaRemaining,
		)
	}
	return created, nil
}

func (r *entitlementRepository) AttachAlias(ctx context.Context, userID, alias string) (*entitlement.Entitlement, error) {
	query := `
		UPDATE entitlements
		SET external_alias = $2, updated_at = NOW()
		WHERE user_id = $1 AND (external_alias IS NULL OR external_alias = $2)
		RETURNING ` + entitlementColumns

	var e entitlement.Entitlement
	err := r.db.WithRetry(ctx, "entitlement.attach_alias", func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).GetContext(ctx, &e, query, userID, alias)
	})
	if err != nil {
		if isUniqueViolation(err) || isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHint("External alias already belongs to another user").
				WithReportableDetails(map[string]any{"user_id": userID}).
				Mark(ierr.ErrIdentityConflict)
		}
		return nil, dbError(err, "Failed to update user")
	}
	return &e, nil
}

func (r *entitlementRepository) ExtendSubscription(ctx context.Context, userID string, duration time.Duration, reference time.Time) (*entitlement.Entitlement, error) {
	// GREATEST keeps stacking correct under concurrent extensions since the
	// base is read from the row being updated
	query := `
		UPDATE entitlements
		SET subscription_expires_at = GREATEST(COALESCE(subscription_expires_at, $2), $2) + ($3::bigint * INTERVAL '1 microsecond'),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + entitlementColumns

	var e entitlement.Entitlement
	err := r.db.WithMutationRetry(ctx, "entitlement.extend_subscription", func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).GetContext(ctx, &e, query, userID, reference.UTC(), duration.Microseconds())
	})
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("User %s not found", userID).
				Mark(ierr.ErrNotFound)
		}
		return nil, dbError(err, "Failed to extend subscription")
	}
	return &e, nil
}

func (r *entitlementRepository) DecrementQuota(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	query := `
		UPDATE entitlements
		SET free_quota_remaining = free_quota_remaining - 1, updated_at = NOW()
		WHERE user_id = $1 AND free_quota_remaining > 0
		RETURNING ` + entitlementColumns

	var e entitlement.Entitlement
	err := r.db.WithMutationRetry(ctx, "entitlement.decrement_quota", func(ctx context.Context) error {
		return r.db.GetQuerier(ctx).GetContext(ctx, &e, query, userID)
	})
	if err == nil {
		return &e, nil
	}
	if !isNoRows(err) {
		return nil, dbError(err, "Failed to consume free quota")
	}

	// nothing updated: either the user is unknown or the quota is spent
	if _, getErr := r.Get(ctx, userID); getErr != nil {
		return nil, getErr
	}
	return nil, ierr.NewError("free quota exhausted").
		WithHint("No free requests left").
		WithReportableDetails(map[string]any{"user_id": userID}).
		Mark(ierr.ErrQuotaExhausted)
}
