package api

import (
	"net/http"
	"time"

	"storefront-sync/internal/authz"
	"storefront-sync/internal/domain"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequireRole admits a request only when the gate allows one of roles. With
// no roles any signed-in user passes.
func RequireRole(gate *authz.Gate, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Check(roles...)
			switch d.Verdict {
			case authz.Allow:
				next.ServeHTTP(w, r)
			case authz.Pending:
				w.Header().Set("Retry-After", "1")
				respondWithJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Session check in progress"})
			case authz.Deny:
				respondWithJSON(w, http.StatusForbidden, ErrorResponse{Error: "Forbidden", Redirect: d.Redirect})
			default:
				respondWithJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Not signed in", Redirect: d.Redirect})
			}
		})
	}
}

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
