package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/database"
)

const (
	sessionCookieName = "face_scan_session"
	sessionDuration   = 24 * time.Hour
)

// Session represents a signed in user
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"` // identity service access token
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionManager handles session creation and validation. Sessions live in
// memory and, when a repository is configured, survive restarts.
type SessionManager struct {
	secret   []byte
	repo     database.SessionRepository
	log      logr.Logger
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewSessionManager creates a new session manager. repo may be nil.
func NewSessionManager(secret string, repo database.SessionRepository, log logr.Logger) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "face-scan-dev-secret-change-in-production"
	}
	return &SessionManager{
		secret:   []byte(secret),
		repo:     repo,
		log:      log,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// CreateSession creates a new session for a signed in user
func (sm *SessionManager) CreateSession(ctx context.Context, userID, email, accessToken string) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}

	now := sm.now()
	session := &Session{
		ID:          base64.URLEncoding.EncodeToString(idBytes),
		UserID:      userID,
		Email:       email,
		AccessToken: accessToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(sessionDuration),
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Save(ctx, toStored(session)); err != nil {
			// The in-memory session still works until restart.
			sm.log.Error(err, "failed to persist session", "user", userID)
		}
	}

	return session, nil
}

// GetSession retrieves a session by ID, falling back to the repository for
// sessions created before a restart.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if ok {
		if sm.now().After(session.ExpiresAt) {
			sm.DeleteSession(ctx, sessionID)
			return nil
		}
		return session
	}

	if sm.repo == nil {
		return nil
	}
	stored, err := sm.repo.Get(ctx, sessionID)
	if err != nil {
		sm.log.Error(err, "failed to load session")
		return nil
	}
	if stored == nil || sm.now().After(stored.ExpiresAt) {
		return nil
	}

	session = fromStored(stored)
	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			sm.log.Error(err, "failed to delete persisted session")
		}
	}
}

// CleanupExpired drops expired sessions from memory and from the repository.
// It returns how many were removed in total.
func (sm *SessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	now := sm.now()
	var removed int64

	sm.mu.Lock()
	for id, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, id)
			removed++
		}
	}
	sm.mu.Unlock()

	if sm.repo == nil {
		return removed, nil
	}
	n, err := sm.repo.DeleteExpired(ctx)
	if err != nil {
		return removed, err
	}
	return removed + n, nil
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	signature := sm.signData(session.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + signature,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from the cookie or, for mobile
// clients, from a bearer session ID.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionID, signature, ok := strings.Cut(cookie.Value, "."); ok && sm.verifySignature(sessionID, signature) {
			if session := sm.GetSession(r.Context(), sessionID); session != nil {
				return session
			}
		}
	}

	if sessionID, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if session := sm.GetSession(r.Context(), sessionID); session != nil {
			return session
		}
	}

	return nil
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func toStored(s *Session) database.StoredSession {
	return database.StoredSession{
		ID:          s.ID,
		UserID:      s.UserID,
		Email:       s.Email,
		AccessToken: s.AccessToken,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

func fromStored(s *database.StoredSession) *Session {
	return &Session{
		ID:          s.ID,
		UserID:      s.UserID,
		Email:       s.Email,
		AccessToken: s.AccessToken,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

// SessionData is the public view of a session
type SessionData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ExpiresAt string `json:"expires_at"`
}

// ToJSON returns the session data for JSON response
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID: s.ID,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler (excludes sensitive fields)
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
