package entitlement

import (
	"context"
	"time"
)

// Repository persists entitlements. Mutations are single atomic statements
// so that concurrent callers never lose updates.
type Repository interface {
	Get(ctx context.Context, userID string) (*Entitlement, error)
	GetByAlias(ctx context.Context, alias string) (*Entitlement, error)

	// CreateIfAbsent inserts e unless its user id or alias is already taken.
	// created is false when another writer got there first.
	CreateIfAbsent(ctx context.Context, e *Entitlement) (created bool, err error)

	// AttachAlias sets the alias on a record that has none yet
	AttachAlias(ctx context.Context, userID, alias string) (*Entitlement, error)

	// ExtendSubscription stacks duration onto max(expiry, reference)
	ExtendSubscription(ctx context.Context, userID string, duration time.Duration, reference time.Time) (*Entitlement, error)

	// DecrementQuota takes one free unit, failing with ErrQuotaExhausted at zero
	DecrementQuota(ctx context.Context, userID string) (*Entitlement, error)
}
