package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/auth"
	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/logging"
	"github.com/kozaktomas/face-scan/internal/scan"
	"github.com/kozaktomas/face-scan/internal/web/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service        *auth.Service
	sessionManager *middleware.SessionManager
	registry       *scan.Registry
	log            logr.Logger
}

// NewAuthHandler creates a new auth handler. registry may be nil.
func NewAuthHandler(service *auth.Service, sm *middleware.SessionManager, registry *scan.Registry, log logr.Logger) *AuthHandler {
	return &AuthHandler{
		service:        service,
		sessionManager: sm,
		registry:       registry,
		log:            log,
	}
}

type loginRequest struct {
	IDToken string `json:"id_token"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool                `json:"success"`
	SessionID string              `json:"session_id,omitempty"`
	ExpiresAt string              `json:"expires_at,omitempty"`
	User      *database.UserLogin `json:"user,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Login exchanges a Google ID token for a session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		respondError(w, http.StatusBadRequest, "id_token is required")
		return
	}

	identity, profile, err := h.service.SignIn(r.Context(), req.IDToken)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}
	if err != nil {
		h.log.Error(err, "Sign in failed")
		respondError(w, http.StatusBadGateway, "sign in failed")
		return
	}

	session, err := h.sessionManager.CreateSession(r.Context(), identity.UserID, identity.Email, identity.AccessToken)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.sessionManager.SetSessionCookie(w, r, session)
	h.log.Info("User signed in", "user", sanitizeForLog(identity.UserID))

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      profile,
	})
}

// Logout drops the session and its scan controller
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session != nil {
		if h.registry != nil && h.registry.Remove(session.ID) {
			h.log.V(logging.DEBUG).Info("Scan controller discarded on logout", "user", session.UserID)
		}
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Status checks if the user is authenticated by validating the session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
		UserID:        session.UserID,
		Email:         session.Email,
	})
}
