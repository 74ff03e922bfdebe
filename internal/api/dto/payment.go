package dto

import (
	"time"

	"github.com/gepvi/gepvi-users/internal/domain/catalog"
	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/gepvi/gepvi-users/internal/validator"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest asks for a hosted payment page for one package
type CreatePaymentRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	PackageType string `json:"package_type" validate:"required"`
	ReturnURL   string `json:"return_url" validate:"required,url"`
}

func (r *CreatePaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !types.IsValidUserID(r.UserID) {
		return ierr.NewError("user_id is not a valid uuid").
			WithHint("user_id must be a UUID").
			Mark(ierr.ErrInvalidIdentity)
	}
	return nil
}

// CreatePaymentResponse carries what the client needs to redirect the user
type CreatePaymentResponse struct {
	IntentID        string                    `json:"intent_id"`
	PaymentID       string                    `json:"payment_id"`
	ConfirmationURL string                    `json:"confirmation_url"`
	Amount          decimal.Decimal           `json:"amount"`
	Currency        string                    `json:"currency"`
	Description     string                    `json:"description"`
	Status          types.PaymentIntentStatus `json:"status"`
}

// PaymentIntentResponse is the public view of a payment intent
type PaymentIntentResponse struct {
	IntentID         string                    `json:"intent_id"`
	UserID           string                    `json:"user_id"`
	PackageID        string                    `json:"package_id"`
	DurationDays     int                       `json:"duration_days"`
	Amount           decimal.Decimal           `json:"amount"`
	Currency         string                    `json:"currency"`
	Description      string                    `json:"description"`
	Gateway          types.PaymentGateway      `json:"gateway"`
	GatewayPaymentID *string                   `json:"gateway_payment_id,omitempty"`
	Status           types.PaymentIntentStatus `json:"status"`
	FailureReason    *string                   `json:"failure_reason,omitempty"`
	RequestedAt      time.Time                 `json:"requested_at"`
	ConfirmedAt      *time.Time                `json:"confirmed_at,omitempty"`
	FailedAt         *time.Time                `json:"failed_at,omitempty"`
}

func NewPaymentIntentResponse(p *paymentintent.PaymentIntent) *PaymentIntentResponse {
	return &PaymentIntentResponse{
		IntentID:         p.ID,
		UserID:           p.UserID,
		PackageID:        p.PackageID,
		DurationDays:     p.DurationDays,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Description:      p.Description,
		Gateway:          p.Gateway,
		GatewayPaymentID: p.GatewayPaymentID,
		Status:           p.Status,
		FailureReason:    p.FailureReason,
		RequestedAt:      p.RequestedAt,
		ConfirmedAt:      p.ConfirmedAt,
		FailedAt:         p.FailedAt,
	}
}

// PackageResponse describes one purchasable package
type PackageResponse struct {
	ID           string          `json:"package_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	DurationDays int             `json:"duration_days"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
}

func NewPackageResponse(p catalog.Package) PackageResponse {
	return PackageResponse{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		DurationDays: p.Days,
		Price:        p.Price,
		Currency:     p.Currency,
	}
}
