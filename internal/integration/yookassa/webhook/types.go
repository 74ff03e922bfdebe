package webhook

import (
	"fmt"

	"github.com/gepvi/gepvi-users/internal/integration/yookassa"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/shopspring/decimal"
)

// NotificationType is the only "type" value the gateway sends
const NotificationType = "notification"

// Notification is the raw body posted to the webhook url
type Notification struct {
	Type   string           `json:"type"`
	Event  string           `json:"event"`
	Object yookassa.Payment `json:"object"`
}

// Event is the closed set of parsed notifications
type Event interface {
	EventType() types.WebhookEventType
	// PaymentID is the gateway's payment id, used for correlation
	PaymentID() string
	isEvent()
}

// Correlation carries what a payment notification tells us about the
// local intent
type Correlation struct {
	GatewayPaymentID string
	// IntentID comes from the metadata we attached at creation. It may be
	// empty for payments created elsewhere.
	IntentID string
}

func (c Correlation) PaymentID() string {
	return c.GatewayPaymentID
}

// PaymentSucceeded means the money was captured
type PaymentSucceeded struct {
	Correlation
	Amount   decimal.Decimal
	Currency string
}

func (PaymentSucceeded) EventType() types.WebhookEventType {
	return types.WebhookEventPaymentSucceeded
}

func (PaymentSucceeded) isEvent() {}

// PaymentCanceled means the payment will never succeed
type PaymentCanceled struct {
	Correlation
	Party  string
	Reason string
}

func (PaymentCanceled) EventType() types.WebhookEventType {
	return types.WebhookEventPaymentCanceled
}

func (PaymentCanceled) isEvent() {}

// FailureReason renders the cancellation details for storage
func (e PaymentCanceled) FailureReason() string {
	switch {
	case e.Party != "" && e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Party, e.Reason)
	case e.Reason != "":
		return e.Reason
	default:
		return "canceled"
	}
}

// Ignored is a well-formed notification that does not settle a payment,
// e.g. payment.waiting_for_capture or refund.succeeded
type Ignored struct {
	Event    string
	ObjectID string
}

func (e Ignored) EventType() types.WebhookEventType {
	return types.WebhookEventType(e.Event)
}

func (e Ignored) PaymentID() string {
	return e.ObjectID
}

func (Ignored) isEvent() {}
