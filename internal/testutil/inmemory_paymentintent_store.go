package testutil

import (
	"context"

	"github.com/gepvi/gepvi-users/internal/domain/paymentintent"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/types"
)

// InMemoryPaymentIntentStore implements paymentintent.Repository. Status
// transitions are compare-and-set under the store lock.
type InMemoryPaymentIntentStore struct {
	*InMemoryStore[*paymentintent.PaymentIntent]
	faults *Faults
}

func NewInMemoryPaymentIntentStore() *InMemoryPaymentIntentStore {
	return &InMemoryPaymentIntentStore{
		InMemoryStore: NewInMemoryStore[*paymentintent.PaymentIntent](),
		faults:        NewFaults(),
	}
}

func (s *InMemoryPaymentIntentStore) Faults() *Faults {
	return s.faults
}

func (s *InMemoryPaymentIntentStore) Create(ctx context.Context, p *paymentintent.PaymentIntent) error {
	if err := s.faults.Next("payment_intent.create"); err != nil {
		return err
	}
	return s.Mutate(func(items map[string]*paymentintent.PaymentIntent) error {
		if _, exists := items[p.ID]; exists {
			return ierr.NewError("payment intent already exists").
				WithHint("Payment intent already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		for _, other := range items {
			if other.IdempotencyKey == p.IdempotencyKey {
				return ierr.NewError("duplicate idempotency key").
					WithHint("Payment intent already exists").
					Mark(ierr.ErrAlreadyExists)
			}
		}
		items[p.ID] = copyIntent(p)
		return nil
	})
}

func (s *InMemoryPaymentIntentStore) Get(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	if err := s.faults.Next("payment_intent.get"); err != nil {
		return nil, err
	}
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, intentNotFound(id)
	}
	return copyIntent(p), nil
}

func (s *InMemoryPaymentIntentStore) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*paymentintent.PaymentIntent, error) {
	if err := s.faults.Next("payment_intent.get_by_gateway_payment_id"); err != nil {
		return nil, err
	}
	found := s.List(ctx, func(_ context.Context, p *paymentintent.PaymentIntent) bool {
		return p.GatewayPaymentID != nil && *p.GatewayPaymentID == gatewayPaymentID
	}, nil)
	if len(found) == 0 {
		return nil, intentNotFound(gatewayPaymentID)
	}
	return copyIntent(found[0]), nil
}

// GetForUpdate has no lock to hold here; TransitionFromOpen is the
// serialization point
func (s *InMemoryPaymentIntentStore) GetForUpdate(ctx context.Context, id string) (*paymentintent.PaymentIntent, error) {
	if err := s.faults.Next("payment_intent.get_for_update"); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *InMemoryPaymentIntentStore) AttachGatewayPayment(ctx context.Context, id, gatewayPaymentID string) error {
	if err := s.faults.Next("payment_intent.attach_gateway_payment"); err != nil {
		return err
	}
	return s.Mutate(func(items map[string]*paymentintent.PaymentIntent) error {
		p, ok := items[id]
		if !ok {
			return intentNotFound(id)
		}
		for otherID, other := range items {
			if otherID != id && other.GatewayPaymentID != nil && *other.GatewayPaymentID == gatewayPaymentID {
				return ierr.NewError("gateway payment linked elsewhere").
					WithHint("Gateway payment is already linked to another intent").
					Mark(ierr.ErrAlreadyExists)
			}
		}
		if p.GatewayPaymentID != nil && *p.GatewayPaymentID != gatewayPaymentID {
			return ierr.NewError("gateway payment id mismatch").
				WithHint("Payment intent is linked to a different gateway payment").
				Mark(ierr.ErrInvalidOperation)
		}
		p.GatewayPaymentID = &gatewayPaymentID
		return nil
	})
}

func (s *InMemoryPaymentIntentStore) MarkUnsettled(ctx context.Context, t paymentintent.Transition) error {
	if err := s.faults.Next("payment_intent.mark_unsettled"); err != nil {
		return err
	}
	return s.Mutate(func(items map[string]*paymentintent.PaymentIntent) error {
		p, ok := items[t.IntentID]
		if !ok || p.Status != types.PaymentIntentStatusPending {
			return nil
		}
		applyTransition(p, t)
		return nil
	})
}

func (s *InMemoryPaymentIntentStore) TransitionFromOpen(ctx context.Context, t paymentintent.Transition) (bool, error) {
	if err := s.faults.Next("payment_intent.transition"); err != nil {
		return false, err
	}

	applied := false
	err := s.Mutate(func(items map[string]*paymentintent.PaymentIntent) error {
		p, ok := items[t.IntentID]
		if !ok || !p.IsOpen() {
			return nil
		}
		applyTransition(p, t)
		applied = true
		return nil
	})
	return applied, err
}

// Put stores p as is, for test setup
func (s *InMemoryPaymentIntentStore) Put(p *paymentintent.PaymentIntent) {
	_ = s.Mutate(func(items map[string]*paymentintent.PaymentIntent) error {
		items[p.ID] = copyIntent(p)
		return nil
	})
}

func (s *InMemoryPaymentIntentStore) Clear() {
	s.InMemoryStore.Clear()
	s.faults.Clear()
}

func applyTransition(p *paymentintent.PaymentIntent, t paymentintent.Transition) {
	p.Status = t.To
	if t.FailureReason != nil {
		reason := *t.FailureReason
		p.FailureReason = &reason
	}
	at := t.At.UTC()
	switch t.To {
	case types.PaymentIntentStatusConfirmed:
		p.ConfirmedAt = &at
	case types.PaymentIntentStatusFailed:
		p.FailedAt = &at
	}
	p.UpdatedAt = at
}

func copyIntent(p *paymentintent.PaymentIntent) *paymentintent.PaymentIntent {
	c := *p
	if p.GatewayPaymentID != nil {
		v := *p.GatewayPaymentID
		c.GatewayPaymentID = &v
	}
	if p.FailureReason != nil {
		v := *p.FailureReason
		c.FailureReason = &v
	}
	if p.ConfirmedAt != nil {
		v := *p.ConfirmedAt
		c.ConfirmedAt = &v
	}
	if p.FailedAt != nil {
		v := *p.FailedAt
		c.FailedAt = &v
	}
	return &c
}

func intentNotFound(id string) error {
	return ierr.NewErrorf("payment intent %s not found", id).
		WithHint("Payment intent not found").
		Mark(ierr.ErrNotFound)
}
