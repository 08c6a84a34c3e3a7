package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/database/mock"
	"github.com/kozaktomas/face-scan/internal/scan"
)

func newTestSessionManager() *SessionManager {
	return NewSessionManager("test-secret", nil, logr.Discard())
}

func sessionCookieFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("Session cookie not found")
	return nil
}

func TestSessionManager_CreateSession(t *testing.T) {
	sm := newTestSessionManager()

	session, err := sm.CreateSession(context.Background(), "u1", "a@example.com", "access")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.UserID != "u1" || session.Email != "a@example.com" || session.AccessToken != "access" {
		t.Errorf("unexpected session fields: %+v", session)
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}
}

func TestSessionManager_GetAndDeleteSession(t *testing.T) {
	sm := newTestSessionManager()
	ctx := context.Background()
	session, _ := sm.CreateSession(ctx, "u1", "", "access")

	if retrieved := sm.GetSession(ctx, session.ID); retrieved == nil || retrieved.UserID != "u1" {
		t.Fatalf("GetSession() = %+v, want session of u1", retrieved)
	}
	if sm.GetSession(ctx, "nonexistent-id") != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}

	sm.DeleteSession(ctx, session.ID)
	if sm.GetSession(ctx, session.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}
}

func TestSessionManager_Expiry(t *testing.T) {
	sm := newTestSessionManager()
	ctx := context.Background()
	now := time.Now()
	sm.now = func() time.Time { return now }

	expired, _ := sm.CreateSession(ctx, "u1", "", "a")
	live, _ := sm.CreateSession(ctx, "u2", "", "b")
	live.ExpiresAt = now.Add(48 * time.Hour)

	now = now.Add(25 * time.Hour)

	removed, err := sm.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupExpired() removed %d, want 1", removed)
	}
	if sm.GetSession(ctx, expired.ID) != nil {
		t.Error("expired session still returned")
	}
	if sm.GetSession(ctx, live.ID) == nil {
		t.Error("live session was removed")
	}
}

func TestSessionManager_PersistsAcrossRestart(t *testing.T) {
	repo := mock.NewMockSessionRepository()
	ctx := context.Background()

	first := NewSessionManager("test-secret", repo, logr.Discard())
	session, err := first.CreateSession(ctx, "u1", "a@example.com", "access")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	restarted := NewSessionManager("test-secret", repo, logr.Discard())
	retrieved := restarted.GetSession(ctx, session.ID)
	if retrieved == nil {
		t.Fatal("session not restored from repository")
	}
	if retrieved.AccessToken != "access" || retrieved.Email != "a@example.com" {
		t.Errorf("restored session = %+v", retrieved)
	}

	restarted.DeleteSession(ctx, session.ID)
	if stored, _ := repo.Get(ctx, session.ID); stored != nil {
		t.Error("DeleteSession() should remove the persisted session")
	}
}

func TestSessionManager_SetAndGetSessionCookie(t *testing.T) {
	sm := newTestSessionManager()
	session, _ := sm.CreateSession(context.Background(), "u1", "", "access")

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, httptest.NewRequest("GET", "/", nil), session)
	cookie := sessionCookieFrom(t, w)

	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if cookie.Secure {
		t.Error("plain HTTP request should not get a Secure cookie")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)

	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil {
		t.Fatal("GetSessionFromRequest() returned nil")
	}
	if retrieved.ID != session.ID {
		t.Errorf("Session ID = %s, want %s", retrieved.ID, session.ID)
	}
}

func TestSessionManager_SecureCookieBehindProxy(t *testing.T) {
	sm := newTestSessionManager()
	session, _ := sm.CreateSession(context.Background(), "u1", "", "access")

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, r, session)

	if !sessionCookieFrom(t, w).Secure {
		t.Error("cookie should be Secure for HTTPS requests")
	}
}

func TestSessionManager_InvalidCookie(t *testing.T) {
	sm := newTestSessionManager()
	session, _ := sm.CreateSession(context.Background(), "u1", "", "access")

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  sessionCookieName,
		Value: session.ID + ".forged-signature",
	})

	if sm.GetSessionFromRequest(req) != nil {
		t.Error("GetSessionFromRequest() should return nil for invalid signature")
	}
}

func TestSessionManager_BearerAuth(t *testing.T) {
	sm := newTestSessionManager()
	session, _ := sm.CreateSession(context.Background(), "u1", "", "access")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)

	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil {
		t.Fatal("GetSessionFromRequest() returned nil for Bearer auth")
	}
	if retrieved.ID != session.ID {
		t.Errorf("Session ID = %s, want %s", retrieved.ID, session.ID)
	}
}

func TestRequireAuth(t *testing.T) {
	sm := newTestSessionManager()
	session, _ := sm.CreateSession(context.Background(), "u1", "", "access")

	handlerCalled := false
	protectedHandler := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if s := GetSessionFromContext(r.Context()); s == nil || s.UserID != "u1" {
			t.Error("Session not found in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)

		protectedHandler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if !handlerCalled {
			t.Error("Handler was not called")
		}
	})

	t.Run("no session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		protectedHandler.ServeHTTP(w, httptest.NewRequest("GET", "/protected", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if handlerCalled {
			t.Error("Handler should not be called for unauthorized request")
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
	})
}

func TestWithScanController(t *testing.T) {
	created := 0
	registry := scan.NewRegistry(func(sessionID, userID string) *scan.Controller {
		created++
		return scan.NewController(nil, nil, nil, mock.NewMockScanResultStore(), scan.Options{UserID: userID})
	}, time.Minute, logr.Discard())
	defer registry.Stop()

	var got []*scan.Controller
	handler := WithScanController(registry)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctrl := MustGetScanController(r.Context(), w)
		if ctrl == nil {
			return
		}
		got = append(got, ctrl)
	}))

	session := &Session{ID: "s1", UserID: "u1"}
	for range 2 {
		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(SetSessionInContext(req.Context(), session))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if created != 1 {
		t.Errorf("factory called %d times, want 1", created)
	}
	if len(got) != 2 || got[0] != got[1] {
		t.Fatal("both requests should see the same controller")
	}
	if got[0].UserID() != "u1" {
		t.Errorf("UserID() = %s, want u1", got[0].UserID())
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status without session = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := newTestSessionManager()

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	if cookie := sessionCookieFrom(t, w); cookie.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1 (expired)", cookie.MaxAge)
	}
}

func TestSession_MarshalJSON(t *testing.T) {
	session := &Session{
		ID:          "test123",
		UserID:      "u1",
		AccessToken: "secret-token",
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}

	data, err := session.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	jsonStr := string(data)
	if strings.Contains(jsonStr, "secret-token") {
		t.Error("JSON should not contain the access token")
	}
	if !strings.Contains(jsonStr, "test123") {
		t.Error("JSON should contain session_id")
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.com", true},
		{"http://localhost:5173", true},
		{"http://localhost", true},
		{"http://localhost.evil.com", false},
		{"https://other.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		got := w.Header().Get("Access-Control-Allow-Origin") == tt.origin && tt.origin != ""
		if got != tt.allowed {
			t.Errorf("origin %q allowed = %v, want %v", tt.origin, got, tt.allowed)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
