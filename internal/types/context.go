package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxCallerID      ContextKey = "ctx_caller_id"
	CtxDBTransaction ContextKey = "ctx_db_transaction"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "X-API-Key"
)

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetCallerID returns the name of the authenticated API caller, if any
func GetCallerID(ctx context.Context) string {
	if callerID, ok := ctx.Value(CtxCallerID).(string); ok {
		return callerID
	}
	return ""
}

// SetCallerID sets the authenticated API caller in the context
func SetCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, CtxCallerID, callerID)
}

// SetRequestID sets the request ID in the context
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}
