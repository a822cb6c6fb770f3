// Package correlation threads a per-request trace token from the admission
// boundary through the queue to the worker.
package correlation

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the correlation id.
const Header = "X-Correlation-ID"

type ctxKey struct{}

// FromContext returns the correlation id stored in ctx, or "" if none is set.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithID returns a context carrying the given correlation id. The worker uses
// this to re-establish the context recorded in a queue job.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware sets the correlation id for the request: taken from the inbound
// header when present, freshly generated otherwise. The id is echoed back in
// the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
