package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeBackend is a test double for Backend.
type fakeBackend struct {
	name          string
	summarizeFunc func(ctx context.Context, text string) (string, error)
	calls         int
	lastText      string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Summarize(ctx context.Context, text string) (string, error) {
	f.calls++
	f.lastText = text
	return f.summarizeFunc(ctx, text)
}

func returning(name, summary string, err error) *fakeBackend {
	return &fakeBackend{
		name: name,
		summarizeFunc: func(ctx context.Context, text string) (string, error) {
			return summary, err
		},
	}
}

// setupTestTracer creates a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func TestChain_FallbackOrder(t *testing.T) {
	first := returning("first", "", errors.New("boom"))
	second := returning("second", "Meeting moved to 3pm", nil)
	third := returning("third", "should not be called", nil)

	chain := NewChain(time.Second, first, second, third)
	result := chain.Summarize(context.Background(), "body")

	if result.Text != "Meeting moved to 3pm" {
		t.Errorf("Text = %q, want %q", result.Text, "Meeting moved to 3pm")
	}
	if result.Backend != "second" {
		t.Errorf("Backend = %q, want %q", result.Backend, "second")
	}
	if !result.Available() {
		t.Error("Available() = false, want true")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", first.calls, second.calls)
	}
	if third.calls != 0 {
		t.Errorf("third backend called %d times, want 0", third.calls)
	}
}

func TestChain_EmptyContentFallsThrough(t *testing.T) {
	empty := returning("empty", "   \n", nil)
	good := returning("good", " Invoice attached ", nil)

	result := NewChain(time.Second, empty, good).Summarize(context.Background(), "body")
	if result.Text != "Invoice attached" {
		t.Errorf("Text = %q, want %q", result.Text, "Invoice attached")
	}
	if result.Backend != "good" {
		t.Errorf("Backend = %q, want %q", result.Backend, "good")
	}
}

func TestChain_AllFail(t *testing.T) {
	a := returning("a", "", errors.New("a down"))
	b := returning("b", "", nil)

	result := NewChain(time.Second, a, b).Summarize(context.Background(), "body")
	if result.Text != Unavailable {
		t.Errorf("Text = %q, want %q", result.Text, Unavailable)
	}
	if result.Available() {
		t.Error("Available() = true, want false")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", a.calls, b.calls)
	}
}

func TestChain_NoBackends(t *testing.T) {
	chain := NewChain(0)
	if chain.Len() != 0 {
		t.Errorf("Len() = %d, want 0", chain.Len())
	}
	result := chain.Summarize(context.Background(), "body")
	if result.Text != Unavailable {
		t.Errorf("Text = %q, want %q", result.Text, Unavailable)
	}
}

func TestChain_TruncatesInputOnce(t *testing.T) {
	a := returning("a", "", errors.New("down"))
	b := returning("b", "ok", nil)

	body := strings.Repeat("é", MaxInputChars+500)
	NewChain(time.Second, a, b).Summarize(context.Background(), body)

	for _, backend := range []*fakeBackend{a, b} {
		if n := utf8.RuneCountInString(backend.lastText); n != MaxInputChars {
			t.Errorf("%s received %d runes, want %d", backend.name, n, MaxInputChars)
		}
		if !utf8.ValidString(backend.lastText) {
			t.Errorf("%s received invalid UTF-8", backend.name)
		}
	}
}

func TestChain_PerBackendTimeout(t *testing.T) {
	slow := &fakeBackend{
		name: "slow",
		summarizeFunc: func(ctx context.Context, text string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	fast := returning("fast", "done", nil)

	start := time.Now()
	result := NewChain(20*time.Millisecond, slow, fast).Summarize(context.Background(), "body")
	if result.Backend != "fast" {
		t.Errorf("Backend = %q, want %q", result.Backend, "fast")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Summarize took %v, want bounded by the backend timeout", elapsed)
	}
}

func TestChain_RecordsSpans(t *testing.T) {
	recorder := setupTestTracer(t)

	a := returning("a", "", errors.New("down"))
	b := returning("b", "ok", nil)
	NewChain(time.Second, a, b).Summarize(context.Background(), "body")

	var chainSpans, backendSpans int
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "summary.Chain":
			chainSpans++
		case "summary.Backend":
			backendSpans++
		}
	}
	if chainSpans != 1 {
		t.Errorf("chain spans = %d, want 1", chainSpans)
	}
	if backendSpans != 2 {
		t.Errorf("backend spans = %d, want 2", backendSpans)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"ascii", "hello world", 5, "hello"},
		{"multibyte", "héllo", 2, "hé"},
		{"multibyte under byte length", "ééé", 3, "ééé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.text, tt.max); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestChain_BlankBodySkipsBackends(t *testing.T) {
	a := returning("a", "summary", nil)

	result := NewChain(time.Second, a).Summarize(context.Background(), " \n\t")

	if result.Text != Unavailable || result.Available() {
		t.Errorf("result = %+v, want unavailable", result)
	}
	if a.calls != 0 {
		t.Errorf("backend calls = %d, want 0", a.calls)
	}
}
