package landmarks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/face-scan/internal/config"
)

const openAIModel = openai.ChatModelGPT4_1Mini

// OpenAI estimates measurements with an OpenAI vision chat model.
type OpenAI struct {
	usageTracker
	client *openai.Client
}

// NewOpenAI creates an OpenAI analyzer. Extra options are passed to the client,
// e.g. option.WithBaseURL to target a compatible server.
func NewOpenAI(apiKey string, pricing config.RequestPricing, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAI{
		usageTracker: usageTracker{pricing: pricing},
		client:       &client,
	}
}

func (p *OpenAI) Name() string {
	return openAIModel
}

func (p *OpenAI) Analyze(ctx context.Context, front, side []byte) (map[string]float64, error) {
	resizedFront, resizedSide, err := prepareImages(front, side)
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(landmarksPrompt),
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart("Front photo followed by side photo."),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    dataURL(resizedFront),
							Detail: "high",
						}),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    dataURL(resizedSide),
							Detail: "high",
						}),
					},
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openAIModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(500),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from OpenAI")
		}

		if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
			p.track(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
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
				openai.AssistantMessage(content),
				openai.UserMessage(retryMessage(err)),
			)
			continue
		}

		return measurements, nil
	}

	return nil, fmt.Errorf("failed to parse landmarks JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

func dataURL(jpegData []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)
}
