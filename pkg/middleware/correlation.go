package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// CorrelationIDKey is the context key for a request's correlation ID.
const CorrelationIDKey contextKey = "correlation_id"

// correlationHeader ties an electord request to the node's own slog lines
// and, since every node in a fleet shares clocks via the same Mongo
// deployment, to the same request's lines across nodes during a handover.
const correlationHeader = "X-Mongoelect-Correlation-ID"

// CorrelationID generates or propagates a per-request correlation ID,
// echoing it back on the response and threading it through the context so
// downstream handlers and Logging can attach it to their log lines.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(correlationHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set(correlationHeader, correlationID)

		ctx := context.WithValue(r.Context(), CorrelationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}
