package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyIsDeterministic(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{"intent_id": "pi_1", "user_id": "u1"}

	key := g.GenerateKey(ScopePaymentIntent, params)
	assert.True(t, strings.HasPrefix(key, "payment_intent-"))
	assert.Equal(t, key, g.GenerateKey(ScopePaymentIntent, map[string]interface{}{"user_id": "u1", "intent_id": "pi_1"}))
	assert.True(t, g.ValidateKey(ScopePaymentIntent, params, key))
	assert.NotEqual(t, key, g.GenerateKey(ScopePaymentIntent, map[string]interface{}{"intent_id": "pi_2", "user_id": "u1"}))
}
