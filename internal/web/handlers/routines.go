package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/routines"
)

// RoutinesHandler handles the workout routine endpoints
type RoutinesHandler struct {
	repo *routines.Repository
	log  logr.Logger
}

// NewRoutinesHandler creates a new routines handler
func NewRoutinesHandler(repo *routines.Repository, log logr.Logger) *RoutinesHandler {
	return &RoutinesHandler{
		repo: repo,
		log:  log,
	}
}

// List returns all stored routines
func (h *RoutinesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.Snapshot(r.Context())
	if err != nil {
		h.log.Error(err, "Failed to read routines")
		respondError(w, http.StatusInternalServerError, "failed to read routines")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Events streams the routine list after every change
func (h *RoutinesHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	for list := range h.repo.List(r.Context()) {
		sendSSEEvent(w, flusher, "routines", list)
	}
}

type createRoutineRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Exercises   []routines.Exercise `json:"exercises"`
}

// Create adds a routine with a generated ID
func (h *RoutinesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoutineRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	routine, err := h.repo.Create(r.Context(), req.Title, req.Description, req.Exercises)
	if err != nil {
		h.log.Error(err, "Failed to create routine")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, routine)
}

// Update replaces the routine with the ID from the URL. Unknown IDs leave the list unchanged.
func (h *RoutinesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing routine ID")
		return
	}

	var routine routines.Routine
	if err := decodeJSON(w, r, &routine, false); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	routine.ID = id
	if routine.Exercises == nil {
		routine.Exercises = []routines.Exercise{}
	}
	if err := routine.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.Update(r.Context(), routine); err != nil {
		h.log.Error(err, "Failed to update routine", "id", sanitizeForLog(id))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, routine)
}

// Delete removes every routine with the ID from the URL
func (h *RoutinesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing routine ID")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.log.Error(err, "Failed to delete routine", "id", sanitizeForLog(id))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
