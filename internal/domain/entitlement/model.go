package entitlement

import (
	"time"

	"github.com/gepvi/gepvi-users/internal/types"
)

// DefaultFreeQuota is the number of free units granted on first contact
const DefaultFreeQuota = 5

// Entitlement is a user's free quota plus paid subscription window. The
// table doubles as the user directory, keyed by user id with an optional
// external alias (the Telegram user id).
type Entitlement struct {
	UserID                string     `db:"user_id" json:"user_id"`
	ExternalAlias         *string    `db:"external_alias" json:"external_alias,omitempty"`
	FreeQuotaRemaining    int        `db:"free_quota_remaining" json:"free_quota_remaining"`
	SubscriptionExpiresAt *time.Time `db:"subscription_expires_at" json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// New builds a fresh record. An empty userID gets a generated one.
func New(userID string, externalAlias *string, freeQuota int) *Entitlement {
	if userID == "" {
		userID = types.GenerateUserID()
	}
	now := time.Now().UTC()
	return &Entitlement{
		UserID:             userID,
		ExternalAlias:      externalAlias,
		FreeQuotaRemaining: freeQuota,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// HasActiveSubscription reports whether the paid window covers now
func (e *Entitlement) HasActiveSubscription(now time.Time) bool {
	return e.SubscriptionExpiresAt != nil && e.SubscriptionExpiresAt.After(now)
}

// ExtendedExpiry returns the expiry after stacking duration on top of the
// current window: max(current, reference) + duration.
func ExtendedExpiry(current *time.Time, reference time.Time, duration time.Duration) time.Time {
	base := reference
	if current != nil && current.After(reference) {
		base = *current
	}
	return base.Add(duration).UTC()
}
