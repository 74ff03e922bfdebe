package webhook_test

import (
	"net/http"
	"testing"

	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa/webhook"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const succeededBody = `{"type":"notification","event":"payment.succeeded","object":{"id":"pay_1","status":"succeeded","amount":{"value":"249.00","currency":"RUB"}}}`

func TestVerifierDisabledAcceptsEverything(t *testing.T) {
	v, err := webhook.NewVerifier(config.GetDefaultConfig(), logger.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, v.Verify("203.0.113.10", []byte(`{}`), http.Header{}))
}

func TestVerifierAllowlist(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Webhook.AllowedCIDRs = []string{"185.71.76.0/27", "77.75.156.11/32"}

	v, err := webhook.NewVerifier(cfg, logger.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, v.Verify("185.71.76.5", nil, http.Header{}))
	assert.NoError(t, v.Verify("77.75.156.11", nil, http.Header{}))

	err = v.Verify("10.0.0.1", nil, http.Header{})
	assert.True(t, ierr.Is(err, ierr.ErrInvalidSignature))

	err = v.Verify("garbage", nil, http.Header{})
	assert.True(t, ierr.Is(err, ierr.ErrInvalidSignature))
}

func TestVerifierSignature(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Webhook.SigningSecret = testutil.WebhookSigningSecret

	v, err := webhook.NewVerifier(cfg, logger.NewNopLogger())
	require.NoError(t, err)

	payload := []byte(succeededBody)
	headers := testutil.SignedHeaders(t, testutil.WebhookSigningSecret, "msg_1", payload)
	assert.NoError(t, v.Verify("", payload, headers))

	tampered := []byte(`{"type":"notification","event":"payment.succeeded","object":{"id":"other"}}`)
	err = v.Verify("", tampered, headers)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidSignature))

	err = v.Verify("", payload, http.Header{})
	assert.True(t, ierr.Is(err, ierr.ErrInvalidSignature))
}
