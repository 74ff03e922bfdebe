package testutil

import (
	"context"
	"time"

	"github.com/gepvi/gepvi-users/internal/domain/entitlement"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
)

// InMemoryEntitlementStore implements entitlement.Repository
type InMemoryEntitlementStore struct {
	*InMemoryStore[*entitlement.Entitlement]
	faults *Faults
}

// NewInMemoryEntitlementStore creates a new in-memory entitlement store
func NewInMemoryEntitlementStore() *InMemoryEntitlementStore {
	return &InMemoryEntitlementStore{
		InMemoryStore: NewInMemoryStore[*entitlement.Entitlement](),
		faults:        NewFaults(),
	}
}

// Faults lets tests make the next calls fail
func (s *InMemoryEntitlementStore) Faults() *Faults {
	return s.faults
}

func (s *InMemoryEntitlementStore) Get(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	if err := s.faults.Next("entitlement.get"); err != nil {
		return nil, err
	}
	e, err := s.InMemoryStore.Get(ctx, userID)
	if err != nil {
		return nil, userNotFound(userID)
	}
	return copyEntitlement(e), nil
}

func (s *InMemoryEntitlementStore) GetByAlias(ctx context.Context, alias string) (*entitlement.Entitlement, error) {
	if err := s.faults.Next("entitlement.get_by_alias"); err != nil {
		return nil, err
	}
	found := s.List(ctx, func(_ context.Context, e *entitlement.Entitlement) bool {
		return e.ExternalAlias != nil && *e.ExternalAlias == alias
	}, nil)
	if len(found) == 0 {
		return nil, ierr.NewErrorf("no user with alias %s", alias).
			WithHint("User not found").
			Mark(ierr.ErrNotFound)
	}
	return copyEntitlement(found[0]), nil
}

func (s *InMemoryEntitlementStore) CreateIfAbsent(ctx context.Context, e *entitlement.Entitlement) (bool, error) {
	if err := s.faults.Next("entitlement.create"); err != nil {
		return false, err
	}

	created := false
	err := s.Mutate(func(items map[string]*entitlement.Entitlement) error {
		if _, exists := items[e.UserID]; exists {
			return nil
		}
		if e.ExternalAlias != nil {
			for _, other := range items {
				if other.ExternalAlias != nil && *other.ExternalAlias == *e.ExternalAlias {
					return nil
				}
			}
		}
		items[e.UserID] = copyEntitlement(e)
		created = true
		return nil
	})
	return created, err
}

func (s *InMemoryEntitlementStore) AttachAlias(ctx context.Context, userID, alias string) (*entitlement.Entitlement, error) {
	if err := s.faults.Next("entitlement.attach_alias"); err != nil {
		return nil, err
	}

	var result *entitlement.Entitlement
	err := s.Mutate(func(items map[string]*entitlement.Entitlement) error {
		e, ok := items[userID]
		if !ok || (e.ExternalAlias != nil && *e.ExternalAlias != alias) {
			return aliasConflict(userID)
		}
		for id, other := range items {
			if id != userID && other.ExternalAlias != nil && *other.ExternalAlias == alias {
				return aliasConflict(userID)
			}
		}
		e.ExternalAlias = &alias
		e.UpdatedAt = time.Now().UTC()
		result = copyEntitlement(e)
		return nil
	})
	return result, err
}

func (s *InMemoryEntitlementStore) ExtendSubscription(ctx context.Context, userID string, duration time.Duration, reference time.Time) (*entitlement.Entitlement, error) {
	if err := s.faults.Next("entitlement.extend_subscription"); err != nil {
		return nil, err
	}

	var result *entitlement.Entitlement
	err := s.Mutate(func(items map[string]*entitlement.Entitlement) error {
		e, ok := items[userID]
		if !ok {
			return userNotFound(userID)
		}
		expiry := entitlement.ExtendedExpiry(e.SubscriptionExpiresAt, reference, duration)
		e.SubscriptionExpiresAt = &expiry
		e.UpdatedAt = time.Now().UTC()
		result = copyEntitlement(e)
		return nil
	})
	return result, err
}

func (s *InMemoryEntitlementStore) DecrementQuota(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	if err := s.faults.Next("entitlement.decrement_quota"); err != nil {
		return nil, err
	}

	var result *entitlement.Entitlement
	err := s.Mutate(func(items map[string]*entitlement.Entitlement) error {
		e, ok := items[userID]
		if !ok {
			return userNotFound(userID)
		}
		if e.FreeQuotaRemaining <= 0 {
			return ierr.NewError("free quota exhausted").
				WithHint("No free requests left").
				Mark(ierr.ErrQuotaExhausted)
		}
		e.FreeQuotaRemaining--
		e.UpdatedAt = time.Now().UTC()
		result = copyEntitlement(e)
		return nil
	})
	return result, err
}

// Put stores e as is, for test setup
func (s *InMemoryEntitlementStore) Put(e *entitlement.Entitlement) {
	_ = s.Mutate(func(items map[string]*entitlement.Entitlement) error {
		items[e.UserID] = copyEntitlement(e)
		return nil
	})
}

// Clear clears the entitlement store
func (s *InMemoryEntitlementStore) Clear() {
	s.InMemoryStore.Clear()
	s.faults.Clear()
}

func copyEntitlement(e *entitlement.Entitlement) *entitlement.Entitlement {
	c := *e
	if e.ExternalAlias != nil {
		alias := *e.ExternalAlias
		c.ExternalAlias = &alias
	}
	if e.SubscriptionExpiresAt != nil {
		expiry := *e.SubscriptionExpiresAt
		c.SubscriptionExpiresAt = &expiry
	}
	return &c
}

func userNotFound(userID string) error {
	return ierr.NewErrorf("user %s not found", userID).
		WithHintf("User %s not found", userID).
		Mark(ierr.ErrNotFound)
}

func aliasConflict(userID string) error {
	return ierr.NewError("alias conflict").
		WithHint("External alias already belongs to another user").
		WithReportableDetails(map[string]any{"user_id": userID}).
		Mark(ierr.ErrIdentityConflict)
}
