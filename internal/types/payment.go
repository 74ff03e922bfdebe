package types

import (
	"fmt"

	"github.com/samber/lo"
)

// PaymentIntentStatus represents the lifecycle state of a payment intent
type PaymentIntentStatus string

const (
	PaymentIntentStatusPending   PaymentIntentStatus = "pending"
	PaymentIntentStatusConfirmed PaymentIntentStatus = "confirmed"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
	// PaymentIntentStatusUnknown is used when the gateway call ended without a
	// definitive answer. A later webhook can still settle the intent.
	PaymentIntentStatusUnknown PaymentIntentStatus = "unknown"
)

func (s PaymentIntentStatus) String() string {
	return string(s)
}

func (s PaymentIntentStatus) Validate() error {
	allowed := []PaymentIntentStatus{
		PaymentIntentStatusPending,
		PaymentIntentStatusConfirmed,
		PaymentIntentStatusFailed,
		PaymentIntentStatusUnknown,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid payment intent status: %s", s)
	}
	return nil
}

// IsTerminal reports whether no further transition is allowed
func (s PaymentIntentStatus) IsTerminal() bool {
	return s == PaymentIntentStatusConfirmed || s == PaymentIntentStatusFailed
}

// OpenPaymentIntentStatuses are the states a webhook may transition from
var OpenPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusPending,
	PaymentIntentStatusUnknown,
}

// PaymentGateway identifies the external payment provider
type PaymentGateway string

const (
	PaymentGatewayYookassa PaymentGateway = "yookassa"
)

func (g PaymentGateway) String() string {
	return string(g)
}
