package testutil

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
)

// WebhookSigningSecret is a valid Standard Webhooks secret for tests
var WebhookSigningSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("gepvi-test-signing-secret-0123456789"))

// SignedHeaders signs payload the way a Standard Webhooks sender does
func SignedHeaders(t *testing.T, secret, msgID string, payload []byte) http.Header {
	t.Helper()
	wh, err := svix.NewWebhook(secret)
	require.NoError(t, err)

	now := time.Now()
	signature, err := wh.Sign(msgID, now, payload)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("webhook-id", msgID)
	headers.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
	headers.Set("webhook-signature", signature)
	return headers
}
