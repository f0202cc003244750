package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/counterpos/api/validators"
	"github.com/angelmondragon/counterpos/pkg/logger"
)

// RequestIDHeader is echoed on every response and copied into error bodies so
// a register can quote it when a sale fails.
const RequestIDHeader = "X-Request-Id"

// RequestID keeps a caller supplied id when it is a plain identifier and
// generates one otherwise.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := validators.SanitizeToken(r.Header.Get(RequestIDHeader), maxIdentifierLen)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
