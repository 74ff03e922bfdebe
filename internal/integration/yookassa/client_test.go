package yookassa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/httpclient"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/sentry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) Client {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Yookassa.BaseURL = baseURL
	cfg.Yookassa.ShopID = "123456"
	cfg.Yookassa.SecretKey = "test_secret"
	cfg.Yookassa.Timeout = timeout
	cfg.Yookassa.MaxRetries = 0

	log := logger.NewNopLogger()
	return NewClient(cfg, httpclient.NewDefaultClient(cfg, log), sentry.NewSentryService(cfg, log), log)
}

func TestCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotence-Key"))
		user, pass, _ := r.BasicAuth()
		assert.Equal(t, "123456", user)
		assert.Equal(t, "test_secret", pass)

		var body CreatePaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "249.00", body.Amount.Value)
		assert.Equal(t, "RUB", body.Amount.Currency)
		assert.True(t, body.Capture)
		assert.Equal(t, ConfirmationTypeRedirect, body.Confirmation.Type)
		assert.Equal(t, "pi_1", body.Metadata[MetadataIntentID])

		_, _ = w.Write([]byte(`{
			"id": "2f8a1c3e-000f-5000-9000-1b2c3d4e5f60",
			"status": "pending",
			"paid": false,
			"amount": {"value": "249.00", "currency": "RUB"},
			"confirmation": {"type": "redirect", "confirmation_url": "https://yoomoney.ru/checkout/payments/v2/contract?orderId=2f8a"}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2*time.Second)
	payment, err := c.CreatePayment(context.Background(), &CreatePaymentRequest{
		Amount:       NewAmount(decimal.RequireFromString("249"), "RUB"),
		Capture:      true,
		Confirmation: Confirmation{Type: ConfirmationTypeRedirect, ReturnURL: "https://t.me/gepvi_bot"},
		Metadata:     map[string]string{MetadataIntentID: "pi_1"},
	}, "idem-1")

	require.NoError(t, err)
	assert.Equal(t, "2f8a1c3e-000f-5000-9000-1b2c3d4e5f60", payment.ID)
	assert.Equal(t, PaymentStatusPending, payment.Status)
	assert.Contains(t, payment.ConfirmationURL(), "yoomoney.ru")
}

func TestCreatePaymentRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","code":"invalid_request","description":"Invalid amount"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 2*time.Second).
		CreatePayment(context.Background(), &CreatePaymentRequest{}, "idem-2")

	require.Error(t, err)
	assert.True(t, ierr.IsGatewayUnavailable(err))
	assert.True(t, httpclient.IsDefinitiveRejection(err))
}

func TestCreatePaymentTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 50*time.Millisecond).
		CreatePayment(context.Background(), &CreatePaymentRequest{}, "idem-3")

	require.Error(t, err)
	assert.True(t, ierr.IsGatewayUnavailable(err))
	assert.False(t, httpclient.IsDefinitiveRejection(err))
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pay_9","status":"succeeded","paid":true,"amount":{"value":"1499.00","currency":"RUB"}}`))
	}))
	defer srv.Close()

	payment, err := newTestClient(t, srv.URL, time.Second).GetPayment(context.Background(), "pay_9")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, payment.Status)
	assert.True(t, payment.Paid)
}
