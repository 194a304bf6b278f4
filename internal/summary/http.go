package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes limits how much of a backend response is read.
const maxResponseBytes = 1 << 20

// HTTPSummarizer calls a hosted summarizer that accepts {"text": ...} and
// answers with {"summary": ...} or {"result": ...}.
type HTTPSummarizer struct {
	url        string
	apiKey     string
	httpClient HTTPDoer
}

// NewHTTPSummarizer creates a new HTTPSummarizer.
func NewHTTPSummarizer(url, apiKey string, httpClient HTTPDoer) *HTTPSummarizer {
	return &HTTPSummarizer{
		url:        url,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Name implements Backend.
func (s *HTTPSummarizer) Name() string {
	return "hosted"
}

type hostedRequest struct {
	Text string `json:"text"`
}

type hostedResponse struct {
	Summary string `json:"summary"`
	Result  string `json:"result"`
}

// Summarize implements Backend.
func (s *HTTPSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	var resp hostedResponse
	if err := postJSON(ctx, s.httpClient, s.url, s.apiKey, hostedRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	if resp.Summary != "" {
		return resp.Summary, nil
	}
	return resp.Result, nil
}

// postJSON sends body as JSON with bearer auth and decodes a 2xx response into out.
func postJSON(ctx context.Context, client HTTPDoer, url, apiKey string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
