package paymentintent

import (
	"context"
)

// Repository defines the interface for payment intent persistence
type Repository interface {
	Create(ctx context.Context, intent *PaymentIntent) error
	Get(ctx context.Context, id string) (*PaymentIntent, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*PaymentIntent, error)

	// GetForUpdate reads the intent and holds its row lock until the
	// surrounding transaction ends
	GetForUpdate(ctx context.Context, id string) (*PaymentIntent, error)

	// AttachGatewayPayment records the gateway's payment id on the intent
	AttachGatewayPayment(ctx context.Context, id, gatewayPaymentID string) error

	// MarkUnsettled moves a pending intent to failed or unknown after the
	// gateway call did not produce a payment
	MarkUnsettled(ctx context.Context, t Transition) error

	// TransitionFromOpen applies t only if the intent is still pending or
	// unknown. applied is false when a terminal state was already reached.
	TransitionFromOpen(ctx context.Context, t Transition) (applied bool, err error)
}
