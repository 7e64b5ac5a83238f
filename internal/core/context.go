package core

import "context"

type contextKey string

const requestIDKey contextKey = "request-id"

// WithRequestID attaches the X-Request-ID value to ctx so logs written
// further down (npm fetches, store writes) can be correlated.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID on ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
