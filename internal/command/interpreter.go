// Package command interprets chat commands and button presses from bot users.
package command

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jarrod-lowe/burner-notify/internal/address"
	"github.com/jarrod-lowe/burner-notify/internal/notify"
)

// Reply texts.
const (
	TextWelcome      = "Welcome! Use /help to see available commands."
	TextNoAddresses  = "No active addresses. Use /new to create one."
	TextUnknown      = "Unknown command. Try /help to see available commands."
	TextStoreFailure = "Something went wrong, try again."
	TextCallbackDone = "Deactivated"
)

// Store is the subset of the address store the interpreter uses.
type Store interface {
	EnsureUser(ctx context.Context, profile *address.UserProfile) error
	CreateAddress(ctx context.Context, chatID int64) (string, error)
	ListAddresses(ctx context.Context, chatID int64) ([]string, error)
	DeactivateAddress(ctx context.Context, chatID int64, addr string) error
}

// Response is what the webhook should send back for one update.
type Response struct {
	// Reply is nil when the update needs no message.
	Reply *notify.Notification
	// CallbackQueryID is set when a button press must be acknowledged.
	CallbackQueryID string
	CallbackText    string
}

// Interpreter maps updates to store operations and replies. It holds no
// per-user state.
type Interpreter struct {
	store  Store
	domain string
}

// NewInterpreter creates a new Interpreter. domain appears in help examples.
func NewInterpreter(store Store, domain string) *Interpreter {
	return &Interpreter{store: store, domain: strings.ToLower(domain)}
}

// Handle interprets one update. On a store failure the response carries a
// generic reply and the error is returned for logging.
func (i *Interpreter) Handle(ctx context.Context, u tgbotapi.Update) (Response, error) {
	if cq := u.CallbackQuery; cq != nil {
		return i.handleCallback(ctx, cq)
	}
	if u.Message == nil || u.Message.Chat == nil || strings.TrimSpace(u.Message.Text) == "" {
		return Response{}, nil
	}
	return i.handleMessage(ctx, u.Message)
}

func (i *Interpreter) handleMessage(ctx context.Context, msg *tgbotapi.Message) (Response, error) {
	chatID := msg.Chat.ID
	name, arg := parseCommand(msg.Text)

	var (
		html string
		err  error
	)
	switch name {
	case "/start":
		html, err = i.start(ctx, chatID, msg.From)
	case "/help":
		html = i.help()
	case "/new":
		html, err = i.create(ctx, chatID)
	case "/list":
		html, err = i.list(ctx, chatID)
	case "/deactivate":
		if arg == "" {
			html = i.usage()
		} else {
			html, err = i.deactivate(ctx, chatID, arg)
		}
	default:
		html = notify.EscapeHTML(TextUnknown)
	}

	if err != nil {
		return failure(chatID), fmt.Errorf("%s for chat %d: %w", name, chatID, err)
	}
	return reply(chatID, html), nil
}

func (i *Interpreter) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) (Response, error) {
	var chatID int64
	switch {
	case cq.Message != nil && cq.Message.Chat != nil:
		chatID = cq.Message.Chat.ID
	case cq.From != nil:
		chatID = cq.From.ID
	}

	resp := Response{CallbackQueryID: cq.ID}
	addr, ok := strings.CutPrefix(cq.Data, notify.DeactivatePrefix)
	if !ok || strings.TrimSpace(addr) == "" || chatID == 0 {
		return resp, nil
	}

	html, err := i.deactivate(ctx, chatID, addr)
	if err != nil {
		resp.Reply = failure(chatID).Reply
		return resp, fmt.Errorf("deactivate callback for chat %d: %w", chatID, err)
	}
	resp.Reply = reply(chatID, html).Reply
	resp.CallbackText = TextCallbackDone
	return resp, nil
}

func (i *Interpreter) start(ctx context.Context, chatID int64, from *tgbotapi.User) (string, error) {
	profile := &address.UserProfile{ChatID: chatID}
	if from != nil {
		profile.FirstName = from.FirstName
		profile.Username = from.UserName
	}
	if err := i.store.EnsureUser(ctx, profile); err != nil {
		return "", err
	}
	return notify.EscapeHTML(TextWelcome), nil
}

func (i *Interpreter) help() string {
	return "<b>Available Commands:</b>\n\n" +
		"/start - Welcome message\n" +
		"/help - Show this help message\n" +
		"/new - Generate a new email address\n" +
		"/list - View all your active email addresses\n" +
		"/deactivate &lt;address&gt; - Deactivate an email address\n\n" +
		"<b>Example:</b>\n" +
		"/deactivate " + notify.EscapeHTML(i.example())
}

func (i *Interpreter) usage() string {
	return notify.EscapeHTML("Usage: /deactivate <email-address>\nExample: /deactivate " + i.example())
}

func (i *Interpreter) example() string {
	return "abc123@" + i.domain
}

func (i *Interpreter) create(ctx context.Context, chatID int64) (string, error) {
	addr, err := i.store.CreateAddress(ctx, chatID)
	if err != nil {
		return "", err
	}
	return "New address: <b>" + notify.EscapeHTML(addr) + "</b>\n" +
		"Send email to this address to receive summaries here.", nil
}

func (i *Interpreter) list(ctx context.Context, chatID int64) (string, error) {
	addrs, err := i.store.ListAddresses(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return notify.EscapeHTML(TextNoAddresses), nil
	}
	lines := make([]string, len(addrs))
	for n, a := range addrs {
		lines[n] = "• " + notify.EscapeHTML(a)
	}
	return strings.Join(lines, "\n"), nil
}

func (i *Interpreter) deactivate(ctx context.Context, chatID int64, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if err := i.store.DeactivateAddress(ctx, chatID, addr); err != nil {
		return "", err
	}
	return "✓ Deactivated " + notify.EscapeHTML(addr), nil
}

// parseCommand splits text into its command word and first argument. A
// "@BotName" suffix on the command word is dropped.
func parseCommand(text string) (name, arg string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", ""
	}
	name = fields[0]
	if strings.HasPrefix(name, "/") {
		name, _, _ = strings.Cut(name, "@")
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	return name, arg
}

func reply(chatID int64, html string) Response {
	return Response{Reply: &notify.Notification{ChatID: chatID, HTML: html}}
}

func failure(chatID int64) Response {
	n := notify.Text(chatID, TextStoreFailure)
	return Response{Reply: &n}
}
