package httpclient

import (
	"fmt"
	"net/http"

	ierr "github.com/gepvi/gepvi-users/internal/errors"
)

// Error represents a non-2xx answer from an upstream service
type Error struct {
	StatusCode int
	Response   []byte
	err        error
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Error() string {
	return e.err.Error()
}

// NewError creates a new HTTP client error
func NewError(statusCode int, response []byte) *Error {
	return &Error{
		StatusCode: statusCode,
		Response:   response,
		err: ierr.NewError(fmt.Sprintf("upstream responded with status %d", statusCode)).
			WithHint("Upstream request failed").
			Mark(ierr.ErrHTTPClient),
	}
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if ierr.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsDefinitiveRejection reports whether the upstream answered with a client
// error that will not change on retry. Transport failures, 429 and 5xx are
// ambiguous: the request may or may not have been processed.
func IsDefinitiveRejection(err error) bool {
	httpErr, ok := IsHTTPError(err)
	if !ok {
		return false
	}
	return httpErr.StatusCode >= 400 &&
		httpErr.StatusCode < 500 &&
		httpErr.StatusCode != http.StatusTooManyRequests &&
		httpErr.StatusCode != http.StatusRequestTimeout
}
