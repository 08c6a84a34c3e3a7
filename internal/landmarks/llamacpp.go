package landmarks

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultLlamaCppURL   = "http://localhost:8081"
	defaultLlamaCppModel = "llava"
)

// LlamaCpp estimates measurements through the OpenAI compatible chat endpoint
// of a llama.cpp server running a multimodal model.
type LlamaCpp struct {
	usageTracker
	parsedURL *url.URL
	model     string
	client    *http.Client
}

func NewLlamaCpp(baseURL, model string) (*LlamaCpp, error) {
	if baseURL == "" {
		baseURL = defaultLlamaCppURL
	}
	if model == "" {
		model = defaultLlamaCppModel
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid llama.cpp URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid llama.cpp URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid llama.cpp URL: missing host")
	}
	return &LlamaCpp{
		parsedURL: parsed,
		model:     model,
		client:    &http.Client{},
	}, nil
}

func (p *LlamaCpp) Name() string {
	return p.model
}

type llamaCppRequest struct {
	Model       string            `json:"model"`
	Messages    []llamaCppMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Stream      bool              `json:"stream"`
}

// llamaCppMessage content is either a string or a list of content parts.
type llamaCppMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type llamaCppContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *llamaCppImageURL `json:"image_url,omitempty"`
}

type llamaCppImageURL struct {
	URL string `json:"url"`
}

type llamaCppResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func imagePart(data []byte) llamaCppContentPart {
	return llamaCppContentPart{
		Type:     "image_url",
		ImageURL: &llamaCppImageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)},
	}
}

func (p *LlamaCpp) Analyze(ctx context.Context, front, side []byte) (map[string]float64, error) {
	resizedFront, resizedSide, err := prepareImages(front, side)
	if err != nil {
		return nil, err
	}

	messages := []llamaCppMessage{
		{Role: "system", Content: landmarksPrompt},
		{
			Role: "user",
			Content: []llamaCppContentPart{
				{Type: "text", Text: "Front photo followed by side photo."},
				imagePart(resizedFront),
				imagePart(resizedSide),
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		resp, err := p.sendRequest(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("llama.cpp API error: %w", err)
		}

		p.track(int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))

		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from llama.cpp")
		}

		content := resp.Choices[0].Message.Content
		lastResponse = content

		measurements, err := parseMeasurements(content)
		if errors.Is(err, ErrNoMeasurements) {
			return nil, err
		}
		if err != nil {
			lastError = err
			messages = append(messages,
				llamaCppMessage{Role: "assistant", Content: content},
				llamaCppMessage{Role: "user", Content: retryMessage(err)},
			)
			continue
		}

		return measurements, nil
	}

	return nil, fmt.Errorf("failed to parse landmarks JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

func (p *LlamaCpp) sendRequest(ctx context.Context, messages []llamaCppMessage) (*llamaCppResponse, error) {
	reqBody := llamaCppRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   500,
		Temperature: 0.1,
		Stream:      false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqURL := p.parsedURL.JoinPath("/v1/chat/completions")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var llamaResp llamaCppResponse
	if err := json.Unmarshal(body, &llamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &llamaResp, nil
}
