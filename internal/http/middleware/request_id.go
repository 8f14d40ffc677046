// Package middleware provides the HTTP middleware chain for the alchemist
// API server.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/alchemist-av/alchemist/internal/observability"
)

// RequestIDHeader is the HTTP header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID injects a request ID into the context and echoes it on the
// response. A caller-supplied X-Request-ID is kept; otherwise a new UUID is
// generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := observability.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from the context, empty when the
// RequestID middleware did not run.
func GetRequestID(ctx context.Context) string {
	return observability.RequestIDFromContext(ctx)
}
