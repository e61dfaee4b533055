// Package middleware provides the HTTP middleware chain for the ingest API:
// request id tagging, panic recovery, request logging, and CORS for browser
// telemetry clients.
package middleware

import (
	"context"
	"net/http"

	"github.com/faultlinehq/faultline/internal/models"
)

type requestIDKey struct{}

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id for log correlation. A caller
// supplied X-Request-ID is kept so submitters can trace their batches end to
// end; otherwise a ULID is minted, the same id form stored entities use.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = models.NewULID().String()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the id stored by RequestID, or "" outside the chain.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
