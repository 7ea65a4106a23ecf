// Package constants holds the request metadata keys shared by the HTTP layer
// and the logs.
package constants

import "context"

// contextKey is an unexported type for context keys in this package.
// Using a custom type prevents collisions with keys from other packages
// that might use the same underlying string value.
type contextKey string

const (
	HeaderXRequestId      = "X-Request-Id"
	HeaderXIdempotencyKey = "X-Idempotency-Key"

	// ContextKeyRequestID is the context key for the request ID.
	ContextKeyRequestID contextKey = "request_id"
	// ContextKeyIdempotencyKey is the context key for the idempotency key.
	ContextKeyIdempotencyKey contextKey = "idempotency_key"
)

// WithRequestMetadata stores the request and idempotency keys in ctx.
func WithRequestMetadata(ctx context.Context, requestID, idempotencyKey string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyRequestID, requestID)
	return context.WithValue(ctx, ContextKeyIdempotencyKey, idempotencyKey)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

// IdempotencyKey returns the idempotency key stored in ctx, or "".
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(ContextKeyIdempotencyKey).(string)
	return key
}
