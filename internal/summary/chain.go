package summary

import (
	"context"
	"strings"
	"time"

	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Chain tries its backends in order and returns the first non-empty summary.
type Chain struct {
	backends []Backend
	timeout  time.Duration
}

// NewChain creates a Chain. A non-positive timeout uses DefaultTimeout.
func NewChain(timeout time.Duration, backends ...Backend) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Chain{
		backends: backends,
		timeout:  timeout,
	}
}

// Len returns the number of configured backends.
func (c *Chain) Len() int {
	return len(c.backends)
}

// Summarize never fails: when every backend errors or returns nothing, the
// result carries the Unavailable sentinel and an empty Backend. A blank body
// is not sent to any backend.
func (c *Chain) Summarize(ctx context.Context, body string) Result {
	tracer := tracing.Tracer("burner-summary")
	ctx, span := tracer.Start(ctx, "summary.Chain")
	defer span.End()

	if strings.TrimSpace(body) == "" {
		span.SetAttributes(attribute.Bool("summary.unavailable", true))
		return Result{Text: Unavailable}
	}
	text := truncate(body, MaxInputChars)

	for _, backend := range c.backends {
		summary, err := c.attempt(ctx, backend, text)
		if err != nil {
			continue
		}
		span.SetAttributes(attribute.String("summary.backend", backend.Name()))
		return Result{Text: summary, Backend: backend.Name()}
	}

	span.SetAttributes(attribute.Bool("summary.unavailable", true))
	return Result{Text: Unavailable}
}

// attempt runs one backend under its own deadline.
func (c *Chain) attempt(ctx context.Context, backend Backend, text string) (string, error) {
	tracer := tracing.Tracer("burner-summary")
	ctx, span := tracer.Start(ctx, "summary.Backend",
		trace.WithAttributes(attribute.String("summary.backend", backend.Name())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	summary, err := backend.Summarize(ctx, text)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		tracing.RecordError(span, ErrEmptySummary)
		return "", ErrEmptySummary
	}
	return summary, nil
}
