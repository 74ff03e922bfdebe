package service

import (
	"context"

	"github.com/gepvi/gepvi-users/internal/api/dto"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/types"
)

// QuotaService is the gate in front of metered features
type QuotaService interface {
	// ConsumeFreeUnit takes one free unit. Granted is false once the quota
	// is spent; that is an answer, not an error.
	ConsumeFreeUnit(ctx context.Context, userID string) (*dto.ConsumeQuotaResponse, error)
}

type quotaService struct {
	ServiceParams
}

func NewQuotaService(params ServiceParams) QuotaService {
	return &quotaService{
		ServiceParams: params,
	}
}

func (s *quotaService) ConsumeFreeUnit(ctx context.Context, userID string) (*dto.ConsumeQuotaResponse, error) {
	if !types.IsValidUserID(userID) {
		return nil, ierr.NewError("user_id is not a valid uuid").
			WithHint("user_id must be a UUID").
			Mark(ierr.ErrInvalidIdentity)
	}

	e, err := s.EntitlementRepo.DecrementQuota(ctx, userID)
	if err != nil {
		if ierr.IsQuotaExhausted(err) {
			s.Logger.Debugw("free quota exhausted", "user_id", userID)
			return &dto.ConsumeQuotaResponse{Granted: false, FreeQuotaRemaining: 0}, nil
		}
		return nil, err
	}

	return &dto.ConsumeQuotaResponse{
		Granted:            true,
		FreeQuotaRemaining: e.FreeQuotaRemaining,
	}, nil
}
