package middleware

import (
	"net/http"

	"github.com/frahmantamala/subscription-billing/pkg/logger"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// RequestID tags every request with a trace id so webhook deliveries can be
// correlated with reconciliation log lines. Gateways that retry a delivery
// may send their own id in the trace header; it is kept when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.WithTrace(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
