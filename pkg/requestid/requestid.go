// Package requestid carries a per-request correlation ID through the
// context so handlers, middleware and error payloads all report the
// same identifier.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Generate returns a fresh correlation ID.
func Generate() string {
	return uuid.NewString()
}

// ToContext returns a child context carrying the given ID.
func ToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the ID stored in ctx, or "" when none was set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContextPtr is FromContext for optional API fields: it returns nil
// instead of a pointer to an empty string when no ID was set.
func FromContextPtr(ctx context.Context) *string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return &id
	}
	return nil
}

// FromRequest returns the ID carried by the request's context.
func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
