package service

import (
	"context"
	"time"

	"github.com/gepvi/gepvi-users/internal/api/dto"
	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/samber/lo"
)

// createAttempts bounds the lookup/insert loop of GetOrCreate. Losing the
// insert race once is normal; losing it repeatedly means the identifiers
// keep pointing at different records.
const createAttempts = 3

// EntitlementService owns the user directory and the subscription window
type EntitlementService interface {
	// GetOrCreate returns the record for the given identity, creating it
	// with the configured free quota on first contact
	GetOrCreate(ctx context.Context, req dto.GetOrCreateUserRequest) (*dto.EntitlementResponse, error)
	Get(ctx context.Context, userID string) (*dto.EntitlementResponse, error)

	// ExtendSubscription stacks duration onto max(current expiry, reference)
	ExtendSubscription(ctx context.Context, userID string, duration time.Duration, reference time.Time) (*entitlement.Entitlement, error)

	// DecrementQuota takes one free unit and fails with ErrQuotaExhausted at zero
	DecrementQuota(ctx context.Context, userID string) (*entitlement.Entitlement, error)
}

type entitlementService struct {
	ServiceParams
}

func NewEntitlementService(params ServiceParams) EntitlementService {
	return &entitlementService{
		ServiceParams: params,
	}
}

func (s *entitlementService) GetOrCreate(ctx context.Context, req dto.GetOrCreateUserRequest) (*dto.EntitlementResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e, created, err := s.getOrCreate(ctx, req.UserID, req.ExternalAlias)
	if err != nil {
		return nil, err
	}

	if created {
		s.Logger.Infow("registered new user",
			"user_id", e.UserID,
			"external_alias", lo.FromPtr(e.ExternalAlias),
			"free_quota", e.FreeQuotaRemaining,
		)
	}

	resp := dto.NewEntitlementResponse(e, time.Now().UTC())
	resp.Created = created
	return resp, nil
}

func (s *entitlementService) getOrCreate(ctx context.Context, userID, alias *string) (*entitlement.Entitlement, bool, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		var (
			existing *entitlement.Entitlement
			err      error
		)
		if userID != nil {
			existing, err = s.resolveByID(ctx, *userID, alias)
		} else {
			existing, err = s.EntitlementRepo.GetByAlias(ctx, *alias)
		}
		if err == nil {
			return existing, false, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, false, err
		}

		fresh := entitlement.New(lo.FromPtr(userID), alias, s.freeQuota())
		created, err := s.EntitlementRepo.CreateIfAbsent(ctx, fresh)
		if err != nil {
			return nil, false, err
		}
		if created {
			return fresh, true, nil
		}

		s.Logger.Debugw("lost user creation race, retrying lookup",
			"user_id", lo.FromPtr(userID),
			"external_alias", lo.FromPtr(alias),
			"attempt", attempt+1,
		)
	}

	return nil, false, ierr.NewError("user identity did not converge").
		WithHint("user_id and external_alias refer to different users").
		Mark(ierr.ErrIdentityConflict)
}

// resolveByID finds the record for userID and reconciles the alias with
// it. When userID is unknown the alias owner is returned. ErrNotFound means
// neither identifier is known yet.
func (s *entitlementService) resolveByID(ctx context.Context, userID string, alias *string) (*entitlement.Entitlement, error) {
	e, err := s.EntitlementRepo.Get(ctx, userID)
	if err != nil {
		if !ierr.IsNotFound(err) || alias == nil {
			return nil, err
		}

		// An unknown user_id falls through to the alias
		owner, aliasErr := s.EntitlementRepo.GetByAlias(ctx, *alias)
		if aliasErr == nil {
			s.Logger.Infow("resolved unknown user_id through external alias",
				"user_id", userID,
				"resolved_user_id", owner.UserID,
			)
			return owner, nil
		}
		if !ierr.IsNotFound(aliasErr) {
			return nil, aliasErr
		}
		return nil, err
	}

	switch {
	case alias == nil:
		return e, nil
	case e.ExternalAlias == nil:
		return s.EntitlementRepo.AttachAlias(ctx, userID, *alias)
	case *e.ExternalAlias == *alias:
		return e, nil
	default:
		return nil, ierr.NewError("user already has a different external alias").
			WithHint("user_id and external_alias refer to different users").
			WithReportableDetails(map[string]any{"user_id": userID}).
			Mark(ierr.ErrIdentityConflict)
	}
}

func (s *entitlementService) Get(ctx context.Context, userID string) (*dto.EntitlementResponse, error) {
	if !types.IsValidUserID(userID) {
		return nil, ierr.NewError("user_id is not a valid uuid").
			WithHint("user_id must be a UUID").
			Mark(ierr.ErrInvalidIdentity)
	}

	e, err := s.EntitlementRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewEntitlementResponse(e, time.Now().UTC()), nil
}

func (s *entitlementService) ExtendSubscription(ctx context.Context, userID string, duration time.Duration, reference time.Time) (*entitlement.Entitlement, error) {
	if duration <= 0 {
		return nil, ierr.NewError("subscription extension must be positive").
			WithHintf("Invalid duration %s", duration).
			Mark(ierr.ErrValidation)
	}

	e, err := s.EntitlementRepo.ExtendSubscription(ctx, userID, duration, reference)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("extended subscription",
		"user_id", userID,
		"duration", duration,
		"expires_at", lo.FromPtr(e.SubscriptionExpiresAt),
	)
	return e, nil
}

func (s *entitlementService) DecrementQuota(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	return s.EntitlementRepo.DecrementQuota(ctx, userID)
}

func (s *entitlementService) freeQuota() int {
	if s.Config == nil {
		return entitlement.DefaultFreeQuota
	}
	return s.Config.Entitlement.FreeQuota
}
