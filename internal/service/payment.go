package service

import (
	"context"
	"time"

	"github.com/gepvi/gepvi-users/internal/api/dto"
	"github.com/gepvi/gepvi-users/internal/domain/catalog"
	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/httpclient"
	"github.com/gepvi/gepvi-users/internal/idempotency"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/samber/lo"
)

// PaymentService issues payment requests against the gateway
type PaymentService interface {
	// CreateIntent records a pending intent and asks the gateway for a
	// hosted payment page. A gateway failure leaves the intent failed or
	// unknown and returns ErrGatewayUnavailable.
	CreateIntent(ctx context.Context, req dto.CreatePaymentRequest) (*dto.CreatePaymentResponse, error)
	GetIntent(ctx context.Context, intentID string) (*dto.PaymentIntentResponse, error)
	ListPackages(ctx context.Context) *dto.ListResponse[dto.PackageResponse]
}

type paymentService struct {
	ServiceParams
	idempGen *idempotency.Generator
}

func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{
		ServiceParams: params,
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *paymentService) CreateIntent(ctx context.Context, req dto.CreatePaymentRequest) (*dto.CreatePaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pkg, err := s.Catalog.Resolve(req.PackageType)
	if err != nil {
		return nil, err
	}

	user, err := s.EntitlementRepo.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	intent := s.newIntent(req, pkg)
	if err := s.PaymentIntentRepo.Create(ctx, intent); err != nil {
		return nil, err
	}

	payment, err := s.Gateway.CreatePayment(ctx, s.gatewayRequest(intent, user.ExternalAlias), intent.IdempotencyKey)
	if err != nil {
		s.markUnsettled(ctx, intent, err)
		return nil, err
	}

	if err := s.PaymentIntentRepo.AttachGatewayPayment(ctx, intent.ID, payment.ID); err != nil {
		// the notification still carries intent_id in metadata, so the
		// reconciler can link the payment later
		s.Logger.Errorw("failed to link gateway payment to intent",
			"intent_id", intent.ID,
			"payment_id", payment.ID,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithTags(err, map[string]string{
			"intent_id":  intent.ID,
			"payment_id": payment.ID,
		})
		return nil, err
	}

	confirmationURL := payment.ConfirmationURL()
	if confirmationURL == "" {
		s.Logger.Warnw("gateway payment has no confirmation url",
			"intent_id", intent.ID,
			"payment_id", payment.ID,
			"status", payment.Status,
		)
	}

	s.Logger.Infow("created payment intent",
		"intent_id", intent.ID,
		"user_id", intent.UserID,
		"package_id", intent.PackageID,
		"payment_id", payment.ID,
		"amount", intent.Amount,
	)

	return &dto.CreatePaymentResponse{
		IntentID:        intent.ID,
		PaymentID:       payment.ID,
		ConfirmationURL: confirmationURL,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Description:     intent.Description,
		Status:          intent.Status,
	}, nil
}

func (s *paymentService) newIntent(req dto.CreatePaymentRequest, pkg catalog.Package) *paymentintent.PaymentIntent {
	now := time.Now().UTC()
	id := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_INTENT)

	return &paymentintent.PaymentIntent{
		ID:           id,
		UserID:       req.UserID,
		PackageID:    pkg.ID,
		DurationDays: pkg.Days,
		Amount:       pkg.Price,
		Currency:     pkg.Currency,
		Description:  pkg.Description,
		ReturnURL:    req.ReturnURL,
		Gateway:      types.PaymentGatewayYookassa,
		IdempotencyKey: s.idempGen.GenerateKey(idempotency.ScopePaymentIntent, map[string]interface{}{
			"intent_id": id,
		}),
		Status:      types.PaymentIntentStatusPending,
		RequestedAt: now,
		UpdatedAt:   now,
	}
}

func (s *paymentService) gatewayRequest(intent *paymentintent.PaymentIntent, alias *string) *yookassa.CreatePaymentRequest {
	metadata := map[string]string{
		yookassa.MetadataIntentID:  intent.ID,
		yookassa.MetadataUserID:    intent.UserID,
		yookassa.MetadataPackageID: intent.PackageID,
	}
	if alias != nil {
		metadata[yookassa.MetadataExternalAlias] = *alias
	}

	return &yookassa.CreatePaymentRequest{
		Amount:  yookassa.NewAmount(intent.Amount, intent.Currency),
		Capture: true,
		Confirmation: yookassa.Confirmation{
			Type:      yookassa.ConfirmationTypeRedirect,
			ReturnURL: intent.ReturnURL,
		},
		Description: intent.Description,
		Metadata:    metadata,
	}
}

// markUnsettled records why the gateway call produced no payment. A
// definitive rejection fails the intent; anything else leaves it unknown
// since the gateway may have created the payment anyway.
func (s *paymentService) markUnsettled(ctx context.Context, intent *paymentintent.PaymentIntent, cause error) {
	to := types.PaymentIntentStatusUnknown
	if httpclient.IsDefinitiveRejection(cause) {
		to = types.PaymentIntentStatusFailed
	}

	s.Logger.Errorw("gateway did not create payment",
		"intent_id", intent.ID,
		"status", to,
		"error", cause,
	)
	s.Sentry.CaptureExceptionWithTags(cause, map[string]string{
		"intent_id": intent.ID,
		"status":    string(to),
	})

	// the caller may already be gone; the intent state must still be written
	err := s.PaymentIntentRepo.MarkUnsettled(context.WithoutCancel(ctx), paymentintent.Transition{
		IntentID:      intent.ID,
		To:            to,
		At:            time.Now().UTC(),
		FailureReason: lo.ToPtr(cause.Error()),
	})
	if err != nil {
		s.Logger.Errorw("failed to record gateway failure on intent",
			"intent_id", intent.ID,
			"error", err,
		)
		return
	}
	intent.Status = to
}

func (s *paymentService) GetIntent(ctx context.Context, intentID string) (*dto.PaymentIntentResponse, error) {
	if intentID == "" {
		return nil, ierr.NewError("intent_id is required").
			WithHint("Payment intent id is required").
			Mark(ierr.ErrValidation)
	}

	intent, err := s.PaymentIntentRepo.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentIntentResponse(intent), nil
}

func (s *paymentService) ListPackages(_ context.Context) *dto.ListResponse[dto.PackageResponse] {
	return dto.NewListResponse(lo.Map(s.Catalog.List(), func(p catalog.Package, _ int) dto.PackageResponse {
		return dto.NewPackageResponse(p)
	}))
}
