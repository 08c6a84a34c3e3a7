package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/capture"
	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database/mock"
	"github.com/kozaktomas/face-scan/internal/landmarks"
	"github.com/kozaktomas/face-scan/internal/prefstore"
	"github.com/kozaktomas/face-scan/internal/routines"
	"github.com/kozaktomas/face-scan/internal/scan"
	"github.com/kozaktomas/face-scan/internal/storage"
	"github.com/kozaktomas/face-scan/internal/web/middleware"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Analyzer: config.AnalyzerConfig{Name: landmarks.NamePlaceholder},
		Storage:  config.StorageConfig{Backend: config.StorageLocal},
		Database: config.DatabaseConfig{Store: config.ResultStoreMemory},
	}
}

// newTestController creates a controller fed over HTTP that stores photos in a temp dir
func newTestController(t *testing.T, store *mock.MockScanResultStore) *scan.Controller {
	t.Helper()
	local, err := storage.NewLocal(filepath.Join(t.TempDir(), "uploads"), "http://localhost/uploads/")
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	if store == nil {
		store = mock.NewMockScanResultStore()
	}
	ctrl := scan.NewController(capture.NewPush(), local, landmarks.Placeholder{}, store, scan.Options{UserID: "u1"})
	t.Cleanup(func() { ctrl.Close() })
	return ctrl
}

// requestWithController creates a request with a scan controller in context
func requestWithController(method, path string, body *bytes.Buffer, ctrl *scan.Controller) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	ctx := middleware.SetScanControllerInContext(req.Context(), ctrl)
	return req.WithContext(ctx)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// imageForm builds a multipart body carrying data as the "image" field
func imageForm(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "photo.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(data)
	writer.Close()
	return body, writer.FormDataContentType()
}

// newTestRoutines creates a routine repository on a temp sqlite file
func newTestRoutines(t *testing.T) *routines.Repository {
	t.Helper()
	store, err := prefstore.Open(filepath.Join(t.TempDir(), "prefs.db"), logr.Discard())
	if err != nil {
		t.Fatalf("failed to open preference store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return routines.NewRepository(store, logr.Discard())
}

// decodeBody decodes a JSON response body
func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}
