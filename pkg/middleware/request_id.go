package middleware

import (
	"net/http"

	"github.com/tracklane/catalog-importer/pkg/requestid"
)

const requestIDHeader = "X-Request-Id"

// RequestID takes the request ID from the x-request-id header or generates
// a new one, and injects it into the request context so every layer logs
// the same identifier.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = requestid.Generate()
		}

		ctx := requestid.ToContext(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
