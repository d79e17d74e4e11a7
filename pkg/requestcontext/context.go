// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and stores read them. Keeping the package
// free of net/http lets workers and unit tests inject values without running the
// middleware chain.
//
// Usage in services (read values):
//
//	correlationID := requestcontext.CorrelationID(ctx)
//	merchantID := requestcontext.MerchantID(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithCorrelationID(ctx, id)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	correlationIDKey struct{}
	merchantIDKey    struct{}
	requestTimeKey   struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyCorrelationID = correlationIDKey{}
	ContextKeyMerchantID    = merchantIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
)

// CorrelationID retrieves the request correlation ID from the context.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID injects a correlation ID into the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, id)
}

// MerchantID retrieves the authenticated merchant ID from the context.
func MerchantID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyMerchantID).(string); ok {
		return id
	}
	return ""
}

// WithMerchantID injects a merchant ID into the context.
func WithMerchantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyMerchantID, id)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts like workers and tests.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need a consistent time within a batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
