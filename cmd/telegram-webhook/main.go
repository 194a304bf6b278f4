// Package main implements the Telegram bot webhook Lambda handler.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jarrod-lowe/burner-notify/internal/address"
	"github.com/jarrod-lowe/burner-notify/internal/command"
	"github.com/jarrod-lowe/burner-notify/internal/config"
	"github.com/jarrod-lowe/burner-notify/internal/notify"
	"github.com/jarrod-lowe/burner-notify/internal/telegram"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

var logger = logging.New()

// Interpreter turns an update into a reply.
type Interpreter interface {
	Handle(ctx context.Context, u tgbotapi.Update) (command.Response, error)
}

// Dispatcher delivers replies to the chat platform.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// CallbackAnswerer acknowledges inline button presses.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

// handler implements the webhook logic.
type handler struct {
	secret      string
	interpreter Interpreter
	dispatcher  Dispatcher
	answerer    CallbackAnswerer
}

// newHandler creates a new handler.
func newHandler(secret string, interpreter Interpreter, dispatcher Dispatcher, answerer CallbackAnswerer) *handler {
	return &handler{
		secret:      secret,
		interpreter: interpreter,
		dispatcher:  dispatcher,
		answerer:    answerer,
	}
}

// handle processes one webhook call. The secret header is checked only when a
// secret is configured. Anything other than a bad secret is answered with 200
// so Telegram does not redeliver the update.
func (h *handler) handle(ctx context.Context, request events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	tracer := tracing.Tracer("burner-telegram-webhook")
	ctx, span := tracer.Start(ctx, "TelegramWebhookHandler")
	defer span.End()

	if h.secret != "" && !telegram.VerifySecret(header(request.Headers, telegram.SecretHeader), h.secret) {
		logger.WarnContext(ctx, "Rejected webhook call with bad secret",
			slog.String("source_ip", request.RequestContext.HTTP.SourceIP),
		)
		return respond(http.StatusUnauthorized), nil
	}

	body := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			logger.WarnContext(ctx, "Ignoring undecodable webhook body", slog.String("error", err.Error()))
			return respond(http.StatusOK), nil
		}
		body = decoded
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		logger.WarnContext(ctx, "Ignoring malformed update", slog.String("error", err.Error()))
		return respond(http.StatusOK), nil
	}
	span.SetAttributes(attribute.Int("telegram.update_id", update.UpdateID))

	resp, err := h.interpreter.Handle(ctx, update)
	if err != nil {
		tracing.RecordError(span, err)
		logger.ErrorContext(ctx, "Command failed",
			slog.Int("update_id", update.UpdateID),
			slog.String("error", err.Error()),
		)
	}

	if resp.Reply != nil {
		// Failures are logged by the dispatcher.
		_ = h.dispatcher.Dispatch(ctx, *resp.Reply)
	}

	if resp.CallbackQueryID != "" {
		if err := h.answerer.AnswerCallbackQuery(ctx, resp.CallbackQueryID, resp.CallbackText); err != nil {
			logger.WarnContext(ctx, "Failed to answer callback query",
				slog.Int("update_id", update.UpdateID),
				slog.String("error", err.Error()),
			)
		}
	}

	return respond(http.StatusOK), nil
}

// header looks up a header by name regardless of case.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func respond(status int) events.LambdaFunctionURLResponse {
	return events.LambdaFunctionURLResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       http.StatusText(status),
	}
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize", slog.String("error", err.Error()))
		panic(err)
	}

	cfg := config.Load()
	if err := cfg.ValidateWebhook(); err != nil {
		logger.Error("FATAL: Invalid configuration", slog.String("error", err.Error()))
		panic(err)
	}

	dynamoClient := dbclient.NewClient(result.Config)

	// Warm DynamoDB connection
	warmCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, _ = dynamoClient.GetItem(warmCtx, &dynamodb.GetItemInput{
		TableName: aws.String(cfg.TableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "WARMUP"},
			"sk": &types.AttributeValueMemberS{Value: "WARMUP"},
		},
	})
	cancel()

	repo := address.NewDynamoDBRepository(dynamoClient, cfg.TableName, address.Config{
		Domain:         cfg.AddressDomain,
		LocalPartBytes: cfg.LocalPartBytes,
		HideInactive:   !cfg.ResolveInactive,
		StoreTimeout:   cfg.StoreTimeout,
	})

	telegramClient := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   notify.DefaultSendTimeout,
	})
	dispatcher := notify.NewDispatcher(telegramClient, logger, notify.DefaultSendTimeout)

	h := newHandler(cfg.WebhookSecret, command.NewInterpreter(repo, cfg.AddressDomain), dispatcher, telegramClient)
	result.Start(h.handle)
}
