package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-scan/internal/auth"
	"github.com/kozaktomas/face-scan/internal/capture"
	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database/mock"
	"github.com/kozaktomas/face-scan/internal/landmarks"
	"github.com/kozaktomas/face-scan/internal/metrics"
	"github.com/kozaktomas/face-scan/internal/prefstore"
	"github.com/kozaktomas/face-scan/internal/routines"
	"github.com/kozaktomas/face-scan/internal/scan"
	"github.com/kozaktomas/face-scan/internal/storage"
	"github.com/kozaktomas/face-scan/internal/web/middleware"
)

type staticIdentity struct{}

func (staticIdentity) SignInWithIDToken(ctx context.Context, provider, idToken string) (*auth.Identity, error) {
	return &auth.Identity{UserID: "u1", Email: "a@example.com", AccessToken: "at"}, nil
}

func (staticIdentity) CurrentUser(ctx context.Context, accessToken string) (*auth.User, error) {
	return &auth.User{ID: "u1", Email: "a@example.com"}, nil
}

type testServer struct {
	server   *Server
	sessions *middleware.SessionManager
	local    *storage.Local
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	local, err := storage.NewLocal(filepath.Join(dir, "uploads"), "http://localhost:8080/uploads/")
	require.NoError(t, err)

	prefs, err := prefstore.Open(filepath.Join(dir, "prefs.db"), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { prefs.Close() })

	results := mock.NewMockScanResultStore()
	registry := scan.NewRegistry(func(sessionID, userID string) *scan.Controller {
		return scan.NewController(capture.NewPush(), local, landmarks.Placeholder{}, results, scan.Options{UserID: userID})
	}, time.Minute, logr.Discard())

	cfg := &config.Config{
		Analyzer: config.AnalyzerConfig{Name: landmarks.NamePlaceholder},
		Storage:  config.StorageConfig{Backend: config.StorageLocal},
		Database: config.DatabaseConfig{Store: config.ResultStoreMemory},
		Web:      config.WebConfig{Host: "127.0.0.1", Port: 0},
	}
	sessions := middleware.NewSessionManager("test-secret", nil, logr.Discard())

	server := NewServer(cfg, Dependencies{
		Auth:     auth.NewService(staticIdentity{}, mock.NewMockUserRepository(), logr.Discard()),
		Sessions: sessions,
		Registry: registry,
		Routines: routines.NewRepository(prefs, logr.Discard()),
		Uploads:  local.Handler(),
		Log:      logr.Discard(),
	})
	t.Cleanup(func() { server.Shutdown(context.Background()) })

	return &testServer{server: server, sessions: sessions, local: local}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(recorder, req)
	return recorder
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	recorder := ts.do(t, "POST", "/api/v1/auth/login", "", strings.NewReader(`{"id_token":"google-token"}`))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestServer_HealthAndMetrics(t *testing.T) {
	metrics.Register(prometheus.DefaultRegisterer)
	metrics.RecordScanOutcome("completed")
	ts := newTestServer(t)

	recorder := ts.do(t, "GET", "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))

	recorder = ts.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "face_scan_scan_sessions_total")
}

func TestServer_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/scan", "/api/v1/routines", "/api/v1/config"} {
		recorder := ts.do(t, "GET", path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code, path)
	}
}

func TestServer_ScanAndRoutines(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	recorder := ts.do(t, "GET", "/api/v1/scan", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Contains(t, recorder.Body.String(), `"kind":"idle"`)

	recorder = ts.do(t, "POST", "/api/v1/scan/start", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Contains(t, recorder.Body.String(), `"kind":"capturing_front"`)

	recorder = ts.do(t, "POST", "/api/v1/scan/history/missing/select", token, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = ts.do(t, "POST", "/api/v1/routines", token, strings.NewReader(`{"title":"Evening"}`))
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	recorder = ts.do(t, "GET", "/api/v1/routines", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"title":"Evening"`)

	recorder = ts.do(t, "POST", "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = ts.do(t, "GET", "/api/v1/scan", token, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestServer_ServesUploads(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.local.Upload(context.Background(), "1_abc_front.jpg", []byte("photo")))

	recorder := ts.do(t, "GET", "/uploads/1_abc_front.jpg", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "photo", recorder.Body.String())
}
