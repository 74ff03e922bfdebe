package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtendedExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	month := 30 * 24 * time.Hour
	future := now.Add(10 * 24 * time.Hour)
	past := now.Add(-5 * 24 * time.Hour)

	tests := []struct {
		name    string
		current *time.Time
		want    time.Time
	}{
		{"no subscription starts from now", nil, now.Add(month)},
		{"active subscription stacks", &future, now.Add(40 * 24 * time.Hour)},
		{"lapsed subscription restarts from now", &past, now.Add(month)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtendedExpiry(tt.current, now, month))
		})
	}
}

func TestHasActiveSubscription(t *testing.T) {
	now := time.Now().UTC()
	e := New("", nil, DefaultFreeQuota)
	assert.False(t, e.HasActiveSubscription(now))

	expiry := now.Add(time.Hour)
	e.SubscriptionExpiresAt = &expiry
	assert.True(t, e.HasActiveSubscription(now))
	assert.False(t, e.HasActiveSubscription(expiry))
}
