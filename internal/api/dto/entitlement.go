package dto

import (
	"strings"
	"time"

	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/types"
)

// GetOrCreateUserRequest identifies a user by id, by external alias or by
// both. At least one must be present.
type GetOrCreateUserRequest struct {
	UserID        *string `json:"user_id,omitempty"`
	ExternalAlias *string `json:"external_alias,omitempty" validate:"omitempty,max=255"`
}

// Normalize trims the identifiers and drops empty ones
func (r *GetOrCreateUserRequest) Normalize() {
	r.UserID = trimmed(r.UserID)
	r.ExternalAlias = trimmed(r.ExternalAlias)
}

func (r *GetOrCreateUserRequest) Validate() error {
	r.Normalize()

	if r.UserID == nil && r.ExternalAlias == nil {
		return ierr.NewError("neither user_id nor external_alias provided").
			WithHint("Provide a user_id or an external_alias").
			Mark(ierr.ErrInvalidIdentity)
	}

	if r.UserID != nil && !types.IsValidUserID(*r.UserID) {
		return ierr.NewError("user_id is not a valid uuid").
			WithHint("user_id must be a UUID").
			WithReportableDetails(map[string]any{"user_id": *r.UserID}).
			Mark(ierr.ErrInvalidIdentity)
	}

	if r.ExternalAlias != nil && len(*r.ExternalAlias) > 255 {
		return ierr.NewError("external_alias too long").
			WithHint("external_alias must be at most 255 characters").
			Mark(ierr.ErrInvalidIdentity)
	}

	return nil
}

// EntitlementResponse is the public view of a user's entitlement
type EntitlementResponse struct {
	UserID                string     `json:"user_id"`
	ExternalAlias         *string    `json:"external_alias,omitempty"`
	FreeQuotaRemaining    int        `json:"free_quota_remaining"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
	Created               bool       `json:"created"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func NewEntitlementResponse(e *entitlement.Entitlement, now time.Time) *EntitlementResponse {
	return &EntitlementResponse{
		UserID:                e.UserID,
		ExternalAlias:         e.ExternalAlias,
		FreeQuotaRemaining:    e.FreeQuotaRemaining,
		SubscriptionExpiresAt: e.SubscriptionExpiresAt,
		HasActiveSubscription: e.HasActiveSubscription(now),
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

// ConsumeQuotaResponse reports whether a free unit was granted
type ConsumeQuotaResponse struct {
	Granted            bool `json:"granted"`
	FreeQuotaRemaining int  `json:"free_quota_remaining"`
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
