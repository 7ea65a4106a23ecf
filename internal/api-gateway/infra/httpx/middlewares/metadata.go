package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/storefront/internal/pkg/constants"
)

// AttachRequestMetadata copies the chi request ID and the client's
// idempotency key into the request context and echoes the request ID back.
// It must run after middleware.RequestID.
func AttachRequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		idempotencyKey := r.Header.Get(constants.HeaderXIdempotencyKey)

		if requestID != "" {
			w.Header().Set(constants.HeaderXRequestId, requestID)
		}
		ctx := constants.WithRequestMetadata(r.Context(), requestID, idempotencyKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
