package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/constants"
	"github.com/kozaktomas/face-scan/internal/landmarks"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Analyzer    string         `json:"analyzer"`
	Analyzers   []ProviderInfo `json:"analyzers"`
	Storage     string         `json:"storage"`
	ResultStore string         `json:"result_store"`
	MaxUpload   int            `json:"max_upload_bytes"`
}

// ProviderInfo represents information about a landmark analyzer
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Get returns the active configuration without secrets
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	names := landmarks.Names()
	analyzers := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		analyzers = append(analyzers, ProviderInfo{Name: name, Available: h.available(name)})
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		Analyzer:    h.config.Analyzer.Name,
		Analyzers:   analyzers,
		Storage:     h.config.Storage.Backend,
		ResultStore: h.config.Database.Store,
		MaxUpload:   constants.MaxUploadSize,
	})
}

// available reports whether the analyzer has the credentials it needs. Local
// analyzers are always considered configured.
func (h *ConfigHandler) available(name string) bool {
	switch name {
	case landmarks.NameOpenAI:
		return h.config.OpenAI.Token != ""
	case landmarks.NameGemini:
		return h.config.Gemini.APIKey != ""
	default:
		return true
	}
}
