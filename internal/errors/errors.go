package errors

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application.
// Errors are marked with one of these sentinels through the builder and
// matched with Is.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrValidation       = errors.New("validation error")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrHTTPClient       = errors.New("http client error")
	ErrDatabase         = errors.New("database error")
	ErrSystem           = errors.New("system error")

	// Entitlement and payment lifecycle
	ErrInvalidIdentity    = errors.New("invalid identity")
	ErrIdentityConflict   = errors.New("identity conflict")
	ErrUnknownPackage     = errors.New("unknown package")
	ErrQuotaExhausted     = errors.New("quota exhausted")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrMalformedWebhook   = errors.New("malformed webhook")
	ErrUnmatchedWebhook   = errors.New("unmatched webhook")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")

	// maps errors to http status codes, checked in order
	statusCodes = []struct {
		err    error
		status int
	}{
		{ErrStorageUnavailable, http.StatusServiceUnavailable},
		{ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{ErrInvalidIdentity, http.StatusBadRequest},
		{ErrIdentityConflict, http.StatusConflict},
		{ErrUnknownPackage, http.StatusNotFound},
		{ErrQuotaExhausted, http.StatusTooManyRequests},
		{ErrMalformedWebhook, http.StatusBadRequest},
		{ErrUnmatchedWebhook, http.StatusNotFound},
		{ErrInvalidSignature, http.StatusUnauthorized},
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyExists, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrInvalidOperation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrHTTPClient, http.StatusInternalServerError},
		{ErrDatabase, http.StatusInternalServerError},
		{ErrSystem, http.StatusInternalServerError},
	}
)

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

// IsHTTPClient checks if an error is an http client error
func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}

// GetHints returns the user facing hints attached anywhere in the chain
func GetHints(err error) []string {
	return errors.GetAllHints(err)
}

func HTTPStatusFromErr(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.status
		}
	}
	return http.StatusInternalServerError
}
