package yookassa

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses as reported by the gateway
const (
	PaymentStatusPending           = "pending"
	PaymentStatusWaitingForCapture = "waiting_for_capture"
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusCanceled          = "canceled"
)

const (
	ConfirmationTypeRedirect = "redirect"

	// Metadata keys written on every payment we create
	MetadataIntentID      = "intent_id"
	MetadataUserID        = "user_id"
	MetadataPackageID     = "package_id"
	MetadataExternalAlias = "telegram_user_id"
)

// Amount is a money value. The gateway expects the value as a string with
// two decimal places.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// NewAmount formats a decimal the way the API expects
func NewAmount(value decimal.Decimal, currency string) Amount {
	return Amount{Value: value.StringFixed(2), Currency: currency}
}

// Decimal parses the amount value
func (a Amount) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(a.Value)
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// CreatePaymentRequest is the body of POST /payments
type CreatePaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type CancellationDetails struct {
	Party  string `json:"party"`
	Reason string `json:"reason"`
}

// Payment is the payment object returned by the API and embedded in
// notifications
type Payment struct {
	ID                  string               `json:"id"`
	Status              string               `json:"status"`
	Paid                bool                 `json:"paid"`
	Amount              Amount               `json:"amount"`
	Confirmation        *Confirmation        `json:"confirmation,omitempty"`
	CreatedAt           *time.Time           `json:"created_at,omitempty"`
	Description         string               `json:"description,omitempty"`
	Metadata            map[string]any       `json:"metadata,omitempty"`
	CancellationDetails *CancellationDetails `json:"cancellation_details,omitempty"`
	Test                bool                 `json:"test"`
}

// ConfirmationURL returns the redirect target for the payer, if any
func (p *Payment) ConfirmationURL() string {
	if p.Confirmation == nil {
		return ""
	}
	return p.Confirmation.ConfirmationURL
}

// APIError is the error body returned by the gateway
type APIError struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}
