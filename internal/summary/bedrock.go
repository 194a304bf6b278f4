package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	// DefaultModelID is the default Bedrock model for summarization.
	DefaultModelID = "anthropic.claude-haiku-4-5-20251001-v1:0"
	// DefaultMaxTokens bounds the length of a Bedrock summary.
	DefaultMaxTokens = 512
	// anthropicVersion is the required API version for Claude on Bedrock.
	anthropicVersion = "bedrock-2023-05-31"
)

// BedrockInvoker abstracts Bedrock model invocation for dependency inversion.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockConfig holds configuration for the Bedrock backend.
type BedrockConfig struct {
	ModelID   string
	MaxTokens int
}

// BedrockSummarizer generates summaries via Amazon Bedrock Claude models.
type BedrockSummarizer struct {
	client    BedrockInvoker
	modelID   string
	maxTokens int
}

// NewBedrockSummarizer creates a new BedrockSummarizer.
func NewBedrockSummarizer(client BedrockInvoker, cfg BedrockConfig) *BedrockSummarizer {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &BedrockSummarizer{
		client:    client,
		modelID:   modelID,
		maxTokens: maxTokens,
	}
}

// Name implements Backend.
func (s *BedrockSummarizer) Name() string {
	return "bedrock"
}

// claudeRequest is the Claude Messages API request format for Bedrock.
type claudeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the Claude Messages API response format.
type claudeResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Summarize implements Backend.
func (s *BedrockSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	reqBody, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        s.maxTokens,
		System:           systemPrompt,
		Messages: []message{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	modelID := s.modelID
	output, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &modelID,
		ContentType: aws.String("application/json"),
		Body:        reqBody,
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptySummary
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
