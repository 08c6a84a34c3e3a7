// Package landmarks turns a front and a side face photo into named facial measurements.
package landmarks

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/kozaktomas/face-scan/internal/config"
)

//go:embed prompts/landmarks.txt
var landmarksPrompt string

// Analyzer names accepted by New.
const (
	NamePlaceholder = "placeholder"
	NameOpenAI      = "openai"
	NameGemini      = "gemini"
	NameOllama      = "ollama"
	NameLlamaCpp    = "llamacpp"
)

const maxRetries = 3

// Names lists the analyzers New can build.
func Names() []string {
	return []string{NamePlaceholder, NameOpenAI, NameGemini, NameOllama, NameLlamaCpp}
}

// ErrNoMeasurements is returned when a response parsed but contained no usable values.
var ErrNoMeasurements = errors.New("no measurements in response")

// Analyzer estimates facial measurements from a front and a side photo.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, front, side []byte) (map[string]float64, error)
}

// Usage holds accumulated token counts and cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // USD
}

// usageTracker is shared by the hosted analyzers. Analyze may run from many
// scan sessions at once, so updates are serialized.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing config.RequestPricing // per 1M tokens
}

func (t *usageTracker) track(inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.InputTokens += int(inputTokens)
	t.usage.OutputTokens += int(outputTokens)
	t.usage.TotalCost += float64(inputTokens) / 1_000_000 * t.pricing.Input
	t.usage.TotalCost += float64(outputTokens) / 1_000_000 * t.pricing.Output
}

// Usage returns a snapshot of the accumulated usage.
func (t *usageTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// New builds the analyzer named by cfg.Analyzer.Name.
func New(ctx context.Context, cfg *config.Config) (Analyzer, error) {
	switch cfg.Analyzer.Name {
	case "", NamePlaceholder:
		return Placeholder{}, nil
	case NameOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai analyzer")
		}
		return NewOpenAI(cfg.OpenAI.Token, cfg.GetModelPricing(openAIModel).Standard), nil
	case NameGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini analyzer")
		}
		return NewGemini(ctx, cfg.Gemini.APIKey, cfg.GetModelPricing(geminiModel).Standard)
	case NameOllama:
		return NewOllama(cfg.Ollama.URL, cfg.Ollama.Model), nil
	case NameLlamaCpp:
		return NewLlamaCpp(cfg.LlamaCpp.URL, cfg.LlamaCpp.Model)
	default:
		return nil, fmt.Errorf("unknown analyzer %q", cfg.Analyzer.Name)
	}
}

// prepareImages resizes both photos for upload to a vision model.
func prepareImages(front, side []byte) ([]byte, []byte, error) {
	resizedFront, err := ResizeImage(front, maxImageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resize front image: %w", err)
	}
	resizedSide, err := ResizeImage(side, maxImageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resize side image: %w", err)
	}
	return resizedFront, resizedSide, nil
}

type landmarksResponse struct {
	Landmarks map[string]float64 `json:"landmarks"`
}

// parseMeasurements decodes a model response. Keys are normalized to snake_case
// and non-finite or non-positive values are dropped.
func parseMeasurements(content string) (map[string]float64, error) {
	var resp landmarksResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(resp.Landmarks))
	for name, value := range resp.Landmarks {
		key := NormalizeKey(name)
		if key == "" || math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil, ErrNoMeasurements
	}
	return out, nil
}

// retryMessage is sent back to the model after a response failed to parse.
func retryMessage(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Output ONLY a JSON object with a \"landmarks\" field.", err)
}

// extractJSON attempts to extract a JSON object from a response that may contain extra text.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return content[start:]
}
