// Package telegram sends bot messages through the Telegram Bot API and checks
// the secret on incoming webhook calls.
package telegram

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultAPIURL is the public Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"
	// SecretHeader carries the webhook secret configured with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	// MaxCallbackDataBytes is the Bot API limit on callback_data.
	MaxCallbackDataBytes = 64
)

// Error types for Bot API calls.
var (
	ErrAPI       = errors.New("telegram api error")
	ErrTransport = errors.New("telegram transport error")
)

// HTTPDoer abstracts HTTP client operations for dependency inversion.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the Telegram Bot API.
type Client struct {
	bot        tgbotapi.BotAPI
	httpClient HTTPDoer
}

// NewClient creates a new Client. An empty baseURL uses DefaultAPIURL.
// No request is made until the first call.
func NewClient(baseURL, token string, httpClient HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	bot := tgbotapi.BotAPI{Token: token, Buffer: 100}
	bot.SetAPIEndpoint(strings.TrimRight(baseURL, "/") + "/bot%s/%s")
	return &Client{
		bot:        bot,
		httpClient: httpClient,
	}
}

// SendMessage sends a message to a chat.
func (c *Client) SendMessage(ctx context.Context, msg tgbotapi.MessageConfig) error {
	return c.call(ctx, "sendMessage", msg, attribute.Int64("telegram.chat_id", msg.ChatID))
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	return c.call(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackQueryID, text))
}

// call sends one Bot API request under a span. Errors never include the
// request URL because it contains the bot token.
func (c *Client) call(ctx context.Context, method string, req tgbotapi.Chattable, attrs ...attribute.KeyValue) error {
	tracer := tracing.Tracer("burner-telegram")
	ctx, span := tracer.Start(ctx, "telegram."+method, trace.WithAttributes(attrs...))
	defer span.End()

	err := c.do(ctx, method, req)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method string, req tgbotapi.Chattable) error {
	doer := &contextDoer{ctx: ctx, next: c.httpClient}
	bot := c.bot
	bot.Client = doer

	_, err := bot.Request(req)
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	switch {
	case errors.As(err, &apiErr):
		return fmt.Errorf("%w: %s: %d %s", ErrAPI, method, apiErr.Code, apiErr.Message)
	case doer.err != nil:
		cause := doer.err
		var urlErr *url.Error
		if errors.As(cause, &urlErr) {
			cause = urlErr.Err
		}
		return fmt.Errorf("%w: %s: %w", ErrTransport, method, cause)
	default:
		return fmt.Errorf("%w: %s: %s", ErrAPI, method, c.redact(err.Error()))
	}
}

func (c *Client) redact(s string) string {
	if c.bot.Token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.bot.Token, "<token>")
}

// contextDoer binds requests to ctx, since the bot library builds them
// without one, and remembers transport failures.
type contextDoer struct {
	ctx  context.Context
	next HTTPDoer
	err  error
}

func (d *contextDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req.WithContext(d.ctx))
	if err != nil {
		d.err = err
	}
	return resp, err
}

// VerifySecret reports whether the webhook secret header matches the
// configured secret in constant time. An empty configured secret never matches.
func VerifySecret(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
