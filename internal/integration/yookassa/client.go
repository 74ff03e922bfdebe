package yookassa

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/httpclient"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/sentry"
)

const headerIdempotenceKey = "Idempotence-Key"

// Client defines the YooKassa API operations used by the service
type Client interface {
	// CreatePayment registers a payment. The idempotence key makes retries
	// of the same request return the same payment.
	CreatePayment(ctx context.Context, req *CreatePaymentRequest, idempotenceKey string) (*Payment, error)
	// GetPayment fetches the current state of a payment
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type client struct {
	cfg    config.YookassaConfig
	http   httpclient.Client
	sentry *sentry.Service
	logger *logger.Logger
}

// NewClient creates a new YooKassa client
func NewClient(cfg *config.Configuration, httpClient httpclient.Client, sentry *sentry.Service, logger *logger.Logger) Client {
	return &client{
		cfg:    cfg.Yookassa,
		http:   httpClient,
		sentry: sentry,
		logger: logger,
	}
}

func (c *client) CreatePayment(ctx context.Context, req *CreatePaymentRequest, idempotenceKey string) (*Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode payment request").
			Mark(ierr.ErrSystem)
	}

	httpReq := httpclient.NewJSONRequest(http.MethodPost, c.url("/payments"), body)
	httpReq.Headers[headerIdempotenceKey] = idempotenceKey

	var payment Payment
	if err := c.do(ctx, "yookassa.create_payment", httpReq, &payment); err != nil {
		return nil, err
	}

	c.logger.Infow("created yookassa payment",
		"payment_id", payment.ID,
		"status", payment.Status,
		"amount", payment.Amount.Value,
		"currency", payment.Amount.Currency,
	)
	return &payment, nil
}

func (c *client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	httpReq := httpclient.NewJSONRequest(http.MethodGet, c.url("/payments/"+paymentID), nil)

	var payment Payment
	if err := c.do(ctx, "yookassa.get_payment", httpReq, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *client) do(ctx context.Context, operation string, req *httpclient.Request, out interface{}) error {
	req.BasicAuth = &httpclient.BasicAuth{Username: c.cfg.ShopID, Password: c.cfg.SecretKey}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	span, ctx := c.sentry.StartGatewaySpan(ctx, operation, map[string]interface{}{
		"method": req.Method,
		"url":    req.URL,
	})
	if span != nil {
		defer span.Finish()
	}

	resp, err := c.http.Send(ctx, req)
	if err != nil {
		fields := []interface{}{"operation", operation, "error", err}
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			var apiErr APIError
			if json.Unmarshal(httpErr.Response, &apiErr) == nil && apiErr.Code != "" {
				fields = append(fields, "status", httpErr.StatusCode, "code", apiErr.Code, "description", apiErr.Description)
			}
		}
		c.logger.Errorw("yookassa request failed", fields...)

		return ierr.WithError(err).
			WithHint("Payment provider is temporarily unavailable").
			WithReportableDetails(map[string]any{"operation": operation}).
			Mark(ierr.ErrGatewayUnavailable)
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		// a 2xx we cannot read leaves the outcome unknown
		return ierr.WithError(err).
			WithHint("Payment provider returned an unreadable response").
			Mark(ierr.ErrGatewayUnavailable)
	}
	return nil
}

func (c *client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}
