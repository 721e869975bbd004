package trace

import (
	"context"

	"github.com/google/uuid"
)

// HeaderName carries the trace id across HTTP hops.
const HeaderName = "X-Trace-ID"

type ctxKey struct{}

// NewID returns a fresh trace id.
func NewID() string {
	return uuid.NewString()
}

// FromContext returns the trace id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext stores traceID in ctx.
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// Ensure returns ctx unchanged when it already carries a trace id, otherwise a
// child context with a new one. Scheduler passes use it so every batch log
// line shares one id.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithContext(ctx, id), id
}
