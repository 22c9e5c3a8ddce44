package authgate

import "context"

type correlationIDContextKey struct{}

// WithCorrelationID attaches a caller-chosen correlation identifier to ctx.
// The engine copies it into audit event metadata so a UI flow can be traced
// across login, validation, and upload round trips.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, id)
}

func correlationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDContextKey{}).(string)
	return id
}
