package middleware

import (
	"context"
	"net/http"

	"github.com/kozaktomas/face-scan/internal/scan"
)

const scanControllerContextKey contextKey = "scan_controller"

// WithScanController is middleware that looks up (or creates) the scan controller
// of the session and adds it to the context. Should be used after RequireAuth.
func WithScanController(registry *scan.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r.Context())
			if session == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctrl := registry.Get(session.ID, session.UserID)
			ctx := SetScanControllerInContext(r.Context(), ctrl)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetScanControllerFromContext retrieves the scan controller from the request context.
// Returns nil if no controller is available.
func GetScanControllerFromContext(ctx context.Context) *scan.Controller {
	ctrl, ok := ctx.Value(scanControllerContextKey).(*scan.Controller)
	if !ok {
		return nil
	}
	return ctrl
}

// SetScanControllerInContext adds a controller to the context.
func SetScanControllerInContext(ctx context.Context, ctrl *scan.Controller) context.Context {
	return context.WithValue(ctx, scanControllerContextKey, ctrl)
}

// MustGetScanController retrieves the controller from context.
// If not available, writes an error response and returns nil.
// Handlers should return immediately after receiving nil.
func MustGetScanController(ctx context.Context, w http.ResponseWriter) *scan.Controller {
	ctrl := GetScanControllerFromContext(ctx)
	if ctrl == nil {
		writeJSONError(w, http.StatusInternalServerError, "scan session not available")
		return nil
	}
	return ctrl
}
