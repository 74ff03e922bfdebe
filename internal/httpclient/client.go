package httpclient

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

// Request represents an HTTP request
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// BasicAuth is sent as the Authorization header when set
	BasicAuth *BasicAuth
}

type BasicAuth struct {
	Username string
	Password string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// Client interface for making HTTP requests
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// DefaultClient implements the Client interface on top of a retrying
// transport. Connection errors, 429 and 5xx answers are retried with
// backoff; callers that POST must send an idempotency key.
type DefaultClient struct {
	client *retryablehttp.Client
}

// NewDefaultClient creates a new DefaultClient
func NewDefaultClient(cfg *config.Configuration, log *logger.Logger) Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Yookassa.MaxRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Yookassa.Timeout
	rc.Logger = &leveledLogger{log: log}
	// hand back the last response instead of a generic "giving up" error
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &DefaultClient{client: rc}
}

// Send makes an HTTP request and returns the response
func (c *DefaultClient) Send(ctx context.Context, req *Request) (*Response, error) {
	var body interface{}
	if req.Body != nil {
		body = req.Body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrHTTPClient)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.BasicAuth != nil {
		httpReq.SetBasicAuth(req.BasicAuth.Username, req.BasicAuth.Password)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Upstream service is unreachable").
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read upstream response").
			Mark(ierr.ErrHTTPClient)
	}

	headers := make(map[string]string)
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	if resp.StatusCode >= 400 {
		return nil, NewError(resp.StatusCode, respBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    headers,
	}, nil
}

// NewJSONRequest is a small helper for JSON APIs
func NewJSONRequest(method, url string, body []byte) *Request {
	return &Request{
		Method:  method,
		URL:     url,
		Headers: map[string]string{"Accept": "application/json"},
		Body:    bytes.Clone(body),
	}
}

// leveledLogger adapts the zap logger to retryablehttp.LeveledLogger
type leveledLogger struct {
	log *logger.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)
