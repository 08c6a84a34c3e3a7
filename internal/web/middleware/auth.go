package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/face-scan/internal/logging"
	"github.com/kozaktomas/face-scan/internal/metrics"
)

type contextKey string

const sessionContextKey contextKey = "session"

// RequireAuth rejects requests without a valid session. Accepted requests
// carry the session in their context, and the request logger is tagged with
// the user id.
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				metrics.RecordAuthRejection("no_session")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := SetSessionInContext(r.Context(), session)
			ctx = logging.IntoContext(ctx, logging.FromContext(ctx).WithValues("user", session.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionFromContext returns the session stored by RequireAuth, or nil.
func GetSessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey).(*Session)
	return session
}

// SetSessionInContext adds a session to the context. Tests use it to skip
// RequireAuth.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
