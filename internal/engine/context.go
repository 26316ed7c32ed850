package engine

import (
	"context"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID attaches the request id used in engine logs
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok && requestID != ""
}
