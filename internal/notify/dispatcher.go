package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// ErrDeliveryFailed is returned when the chat platform rejected or never
// received a notification.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// Sender delivers a message to the chat platform.
type Sender interface {
	SendMessage(ctx context.Context, req tgbotapi.MessageConfig) error
}

// Logger is the subset of *slog.Logger the dispatcher writes to.
type Logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
}

// Dispatcher delivers notifications with a single attempt.
type Dispatcher struct {
	sender  Sender
	logger  Logger
	timeout time.Duration
	newID   func() string
}

// NewDispatcher creates a new Dispatcher. A non-positive timeout uses
// DefaultSendTimeout.
func NewDispatcher(sender Sender, logger Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		sender:  sender,
		logger:  logger,
		timeout: timeout,
		newID:   func() string { return uuid.New().String() },
	}
}

// Dispatch sends n once. Failures are logged with the notification id and
// returned wrapped in ErrDeliveryFailed; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = d.newID()
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.SendMessage(ctx, n.request()); err != nil {
		d.logger.WarnContext(ctx, "Notification delivery failed",
			slog.String("notification_id", n.ID),
			slog.Int64("chat_id", n.ChatID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, n.ID, err)
	}

	d.logger.InfoContext(ctx, "Notification delivered",
		slog.String("notification_id", n.ID),
		slog.Int64("chat_id", n.ChatID),
	)
	return nil
}
