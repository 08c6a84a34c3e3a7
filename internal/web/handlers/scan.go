package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/constants"
	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/scan"
	"github.com/kozaktomas/face-scan/internal/web/middleware"
)

// photoOfferer is implemented by capture devices fed over HTTP.
type photoOfferer interface {
	Offer(data []byte) error
}

// ScanHandler exposes the scan controller of the current session
type ScanHandler struct {
	log logr.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(log logr.Logger) *ScanHandler {
	return &ScanHandler{log: log}
}

// ScanResponse is the state of a scan session
type ScanResponse struct {
	State   scan.State            `json:"state"`
	History []database.ScanResult `json:"history"`
}

func newScanResponse(ctrl *scan.Controller) ScanResponse {
	return ScanResponse{
		State:   ctrl.State(),
		History: ctrl.History(),
	}
}

// respondScanError maps controller errors to HTTP statuses.
func respondScanError(w http.ResponseWriter, err error) {
	var stageErr *scan.StageError
	switch {
	case errors.Is(err, scan.ErrPipelineInFlight), errors.Is(err, scan.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scan.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scan.ErrClosed):
		respondError(w, http.StatusGone, err.Error())
	case errors.As(err, &stageErr):
		respondError(w, http.StatusUnprocessableEntity, scan.UserMessage(err))
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Get returns the current state and history
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}
	respondJSON(w, http.StatusOK, newScanResponse(ctrl))
}

// Start begins a new scan session
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}
	if err := ctrl.Start(r.Context()); err != nil {
		respondScanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newScanResponse(ctrl))
}

// Capture accepts the photo for the pose the session waits for.
// The photo is sent as the multipart field "image".
func (h *ScanHandler) Capture(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(data) > constants.MaxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	if offerer, ok := ctrl.Capturer().(photoOfferer); ok && offerer.Offer(data) == nil {
		err = ctrl.Capture(r.Context())
	} else {
		err = ctrl.SubmitImage(r.Context(), data)
	}
	if err != nil {
		h.log.V(1).Info("Photo rejected", "error", err.Error())
		respondScanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newScanResponse(ctrl))
}

type failRequest struct {
	Message string `json:"message"`
}

// Fail records a client side error such as a denied camera permission
func (h *ScanHandler) Fail(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}

	var req failRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := ctrl.Fail(r.Context(), strings.TrimSpace(req.Message)); err != nil {
		respondScanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newScanResponse(ctrl))
}

// Reset abandons the session and returns to idle
func (h *ScanHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}
	if err := ctrl.Reset(r.Context()); err != nil {
		respondScanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newScanResponse(ctrl))
}

// ShowHistory switches the session to the history view
func (h *ScanHandler) ShowHistory(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}
	if err := ctrl.ShowHistory(r.Context()); err != nil {
		respondScanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newScanResponse(ctrl))
}

// History returns the scan history. With ?reload=true it is read from the result store first.
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}

	if r.URL.Query().Get("reload") == "true" {
		if err := ctrl.LoadHistory(r.Context()); err != nil {
			h.log.Error(err, "Failed to reload scan history")
			respondError(w, http.StatusBadGateway, "failed to load history")
			return
		}
	}

	history := ctrl.History()
	respondJSON(w, http.StatusOK, map[string]any{
		"results": history,
		"count":   len(history),
	})
}

// Select shows a result from the history
func (h *ScanHandler) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing result ID")
		return
	}

	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}
	if err := ctrl.SelectByID(r.Context(), id); err != nil {
		respondScanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newScanResponse(ctrl))
}

// Events streams state and history changes as server-sent events
func (h *ScanHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctrl := middleware.MustGetScanController(r.Context(), w)
	if ctrl == nil {
		return
	}

	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := ctrl.Subscribe()
	defer ctrl.Unsubscribe(eventCh)

	state := ctrl.State()
	sendSSEEvent(w, flusher, scan.EventState, scan.Event{Type: scan.EventState, State: &state})

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}
