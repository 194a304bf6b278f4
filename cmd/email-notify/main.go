// Package main implements the email-notify SQS consumer Lambda handler.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jarrod-lowe/burner-notify/internal/address"
	"github.com/jarrod-lowe/burner-notify/internal/config"
	"github.com/jarrod-lowe/burner-notify/internal/inbound"
	"github.com/jarrod-lowe/burner-notify/internal/notify"
	"github.com/jarrod-lowe/burner-notify/internal/rawstore"
	"github.com/jarrod-lowe/burner-notify/internal/summary"
	"github.com/jarrod-lowe/burner-notify/internal/telegram"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var logger = logging.New()

// RawStore reads raw emails and issues download links for them.
type RawStore interface {
	Get(ctx context.Context, ref rawstore.ObjectRef) ([]byte, error)
	DownloadURL(ctx context.Context, ref rawstore.ObjectRef) (string, error)
}

// EmailResolver parses a raw email and finds the owner of its recipient.
type EmailResolver interface {
	Resolve(ctx context.Context, raw []byte) (*inbound.Resolution, error)
}

// Summarizer produces the summary shown in a notification.
type Summarizer interface {
	Summarize(ctx context.Context, body string) summary.Result
}

// Dispatcher delivers notifications to the chat platform.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// handler implements the email-notify SQS consumer logic.
type handler struct {
	store      RawStore
	resolver   EmailResolver
	summarizer Summarizer
	dispatcher Dispatcher
}

// newHandler creates a new handler.
func newHandler(store RawStore, resolver EmailResolver, summarizer Summarizer, dispatcher Dispatcher) *handler {
	return &handler{
		store:      store,
		resolver:   resolver,
		summarizer: summarizer,
		dispatcher: dispatcher,
	}
}

// handle processes an SQS event whose records carry S3 object notifications.
func (h *handler) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	tracer := tracing.Tracer("burner-email-notify")
	ctx, span := tracer.Start(ctx, "EmailNotifyHandler")
	defer span.End()

	var failures []events.SQSBatchItemFailure

	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			logger.ErrorContext(ctx, "Failed to process message",
				slog.String("message_id", record.MessageId),
				slog.String("error", err.Error()),
			)
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	logger.InfoContext(ctx, "Email notify batch completed",
		slog.Int("total", len(event.Records)),
		slog.Int("failures", len(failures)),
	)

	return events.SQSEventResponse{
		BatchItemFailures: failures,
	}, nil
}

// processRecord handles every object in one SQS record. The first retryable
// error stops the record so the whole record is redelivered.
func (h *handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var s3Event events.S3Event
	if err := json.Unmarshal([]byte(record.Body), &s3Event); err != nil {
		return fmt.Errorf("parse S3 event: %w", err)
	}

	refs, err := rawstore.RefsFromEvent(s3Event)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		if err := h.notifyEmail(ctx, ref); err != nil {
			return fmt.Errorf("%s: %w", ref, err)
		}
	}
	return nil
}

// notifyEmail turns one stored email into a notification. It returns an
// error only when redelivery could succeed.
func (h *handler) notifyEmail(ctx context.Context, ref rawstore.ObjectRef) error {
	tracer := tracing.Tracer("burner-email-notify")
	ctx, span := tracer.Start(ctx, "NotifyEmail")
	defer span.End()
	span.SetAttributes(attribute.String("s3.key", ref.Key))

	raw, err := h.store.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, rawstore.ErrNotFound) || errors.Is(err, rawstore.ErrTooLarge) {
			logger.WarnContext(ctx, "Skipping unreadable email object",
				slog.String("object", ref.String()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		tracing.RecordError(span, err)
		return fmt.Errorf("get raw email: %w", err)
	}

	res, err := h.resolver.Resolve(ctx, raw)
	if err != nil {
		if errors.Is(err, inbound.ErrNoOwner) || errors.Is(err, inbound.ErrUnparseable) {
			logger.InfoContext(ctx, "Dropping email without owner",
				slog.String("object", ref.String()),
				slog.String("reason", err.Error()),
			)
			return nil
		}
		tracing.RecordError(span, err)
		return fmt.Errorf("resolve owner: %w", err)
	}

	var (
		result      summary.Result
		downloadURL string
	)
	var g errgroup.Group
	g.Go(func() error {
		result = h.summarizer.Summarize(ctx, res.Email.SummarizableText())
		return nil
	})
	g.Go(func() error {
		u, err := h.store.DownloadURL(ctx, ref)
		if err != nil {
			logger.WarnContext(ctx, "Failed to sign download link, sending without it",
				slog.String("object", ref.String()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		downloadURL = u
		return nil
	})
	_ = g.Wait()

	n := notify.FormatEmail(res.Owner.ChatID, res.Email.Subject, result.Text, downloadURL, res.Owner.Address)
	if err := h.dispatcher.Dispatch(ctx, n); err != nil {
		// Delivery is best-effort; the dispatcher has already logged it.
		return nil
	}

	logger.InfoContext(ctx, "Email notification sent",
		slog.Int64("chat_id", res.Owner.ChatID),
		slog.String("recipient", res.Email.Recipient),
		slog.String("summary_backend", result.Backend),
	)
	return nil
}

// buildBackends creates the summarization backends in configured order.
func buildBackends(cfg config.Config, httpClient summary.HTTPDoer, bedrockClient summary.BedrockInvoker) []summary.Backend {
	var backends []summary.Backend
	for _, name := range cfg.SummaryBackends {
		switch name {
		case config.BackendHosted:
			backends = append(backends, summary.NewHTTPSummarizer(cfg.SummaryURL, cfg.SummaryAPIKey, httpClient))
		case config.BackendOpenAI:
			backends = append(backends, summary.NewChatCompletionSummarizer(cfg.OpenAIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, httpClient))
		case config.BackendBedrock:
			backends = append(backends, summary.NewBedrockSummarizer(bedrockClient, summary.BedrockConfig{
				ModelID: cfg.SummaryModelID,
			}))
		}
	}
	return backends
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize", slog.String("error", err.Error()))
		panic(err)
	}

	cfg := config.Load()
	if err := cfg.ValidateNotify(); err != nil {
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

	s3Client := s3.NewFromConfig(result.Config)
	store := rawstore.NewStore(s3Client, s3.NewPresignClient(s3Client), cfg.DownloadLinkTTL, cfg.StoreTimeout)

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.SummaryTimeout + 5*time.Second,
	}

	bedrockClient := bedrockruntime.NewFromConfig(result.Config)
	chain := summary.NewChain(cfg.SummaryTimeout, buildBackends(cfg, httpClient, bedrockClient)...)

	telegramClient := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   notify.DefaultSendTimeout,
	})
	dispatcher := notify.NewDispatcher(telegramClient, logger, notify.DefaultSendTimeout)

	logger.Info("Email notify configured",
		slog.Int("summary_backends", chain.Len()),
	)

	h := newHandler(store, inbound.NewResolver(repo), chain, dispatcher)
	result.Start(h.handle)
}
