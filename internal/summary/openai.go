package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = openai.ChatModelGPT4oMini

// ChatCompletionSummarizer calls an OpenAI-compatible chat completion endpoint.
type ChatCompletionSummarizer struct {
	client openai.Client
	model  string
}

// NewChatCompletionSummarizer creates a new ChatCompletionSummarizer.
// baseURL is the API root, e.g. https://api.openai.com/v1.
func NewChatCompletionSummarizer(baseURL, apiKey, model string, httpClient HTTPDoer) *ChatCompletionSummarizer {
	if model == "" {
		model = DefaultChatModel
	}
	// The chain owns fallback, so the SDK does not retry.
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return &ChatCompletionSummarizer{
		client: client,
		model:  model,
	}
}

// Name implements Backend.
func (s *ChatCompletionSummarizer) Name() string {
	return "openai"
}

// Summarize implements Backend.
func (s *ChatCompletionSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: %d", ErrBadStatus, apiErr.StatusCode)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptySummary
	}
	return resp.Choices[0].Message.Content, nil
}
