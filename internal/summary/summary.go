// Package summary produces short email summaries through a prioritized chain
// of summarization backends.
package summary

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	// Unavailable is returned as the summary text when no backend succeeded.
	Unavailable = "Summary unavailable."
	// MaxInputChars caps the email text handed to any backend.
	MaxInputChars = 15000
	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 30 * time.Second
	// systemPrompt instructs chat-style backends.
	systemPrompt = "Summarize this email for a human."
)

// Error types for backend failures.
var (
	ErrEmptySummary = errors.New("backend returned an empty summary")
	ErrBadStatus    = errors.New("backend returned a non-success status")
)

// Backend is a single summarization capability.
type Backend interface {
	Name() string
	Summarize(ctx context.Context, text string) (string, error)
}

// HTTPDoer abstracts HTTP client operations for dependency inversion.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of running the chain.
type Result struct {
	Text    string
	Backend string
}

// Available reports whether a backend produced the text.
func (r Result) Available() bool {
	return r.Backend != ""
}

// truncate cuts text to at most max runes.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
