package landmarks

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/constants"
)

const geminiModel = "gemini-2.5-flash"

// Gemini estimates measurements with a Gemini multimodal model.
type Gemini struct {
	usageTracker
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string, pricing config.RequestPricing) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		usageTracker: usageTracker{pricing: pricing},
		client:       client,
	}, nil
}

func (p *Gemini) Name() string {
	return geminiModel
}

func (p *Gemini) Analyze(ctx context.Context, front, side []byte) (map[string]float64, error) {
	resizedFront, resizedSide, err := prepareImages(front, side)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: landmarksPrompt},
				{InlineData: &genai.Blob{Data: resizedFront, MIMEType: constants.ImageContentType}},
				{InlineData: &genai.Blob{Data: resizedSide, MIMEType: constants.ImageContentType}},
			},
		},
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		if result.UsageMetadata != nil {
			p.track(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}
		lastResponse = content

		measurements, err := parseMeasurements(content)
		if errors.Is(err, ErrNoMeasurements) {
			return nil, err
		}
		if err != nil {
			lastError = err
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: retryMessage(err)}},
				},
			)
			continue
		}

		return measurements, nil
	}

	return nil, fmt.Errorf("failed to parse landmarks JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}
