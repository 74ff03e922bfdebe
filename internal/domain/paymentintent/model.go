package paymentintent

import (
	"time"

	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/shopspring/decimal"
)

// PaymentIntent is the local record of a purchase attempt. It is created
// before the gateway is called and settled by webhooks.
type PaymentIntent struct {
	ID               string                    `db:"intent_id" json:"intent_id"`
	UserID           string                    `db:"user_id" json:"user_id"`
	PackageID        string                    `db:"package_id" json:"package_id"`
	DurationDays     int                       `db:"duration_days" json:"duration_days"`
	Amount           decimal.Decimal           `db:"amount" json:"amount"`
	Currency         string                    `db:"currency" json:"currency"`
	Description      string                    `db:"description" json:"description"`
	ReturnURL        string                    `db:"return_url" json:"return_url"`
	Gateway          types.PaymentGateway      `db:"gateway" json:"gateway"`
	GatewayPaymentID *string                   `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	IdempotencyKey   string                    `db:"idempotency_key" json:"idempotency_key"`
	Status           types.PaymentIntentStatus `db:"status" json:"status"`
	FailureReason    *string                   `db:"failure_reason" json:"failure_reason,omitempty"`
	RequestedAt      time.Time                 `db:"requested_at" json:"requested_at"`
	ConfirmedAt      *time.Time                `db:"confirmed_at" json:"confirmed_at,omitempty"`
	FailedAt         *time.Time                `db:"failed_at" json:"failed_at,omitempty"`
	UpdatedAt        time.Time                 `db:"updated_at" json:"updated_at"`
}

// Duration is the subscription extension granted on confirmation. It is
// copied from the catalog when the intent is created.
func (p *PaymentIntent) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// IsOpen reports whether a webhook may still settle the intent
func (p *PaymentIntent) IsOpen() bool {
	return !p.Status.IsTerminal()
}

// Transition describes a compare-and-set status change
type Transition struct {
	IntentID      string
	To            types.PaymentIntentStatus
	At            time.Time
	FailureReason *string
}
