// Package notify formats chat notifications and delivers them.
package notify

import (
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jarrod-lowe/burner-notify/internal/telegram"
)

const (
	// DeactivatePrefix prefixes the callback token of the deactivate button.
	DeactivatePrefix = "deactivate:"
	// MaxMessageRunes is the Bot API limit on the length of a message.
	MaxMessageRunes = 4096
	// maxSubjectRunes keeps room for the summary under a pathological subject.
	maxSubjectRunes = 256

	labelDownload   = "Download raw email"
	labelDeactivate = "Deactivate this address"
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the characters significant to Telegram HTML formatting.
// Quotes are left alone.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Action is an interactive button. Exactly one of URL and Callback is set.
type Action struct {
	Label    string
	URL      string
	Callback string
}

// Notification is a formatted message for one chat.
type Notification struct {
	// ID correlates delivery logs; the dispatcher assigns one when empty.
	ID     string
	ChatID int64
	// HTML is the message body in Telegram HTML.
	HTML string
	Rows [][]Action
}

// Text returns a notification carrying only text, escaped for HTML.
func Text(chatID int64, text string) Notification {
	return Notification{ChatID: chatID, HTML: EscapeHTML(text)}
}

// DeactivateCallback returns the callback token for the deactivate button.
// ok is false when the token would exceed the Bot API limit.
func DeactivateCallback(address string) (token string, ok bool) {
	token = DeactivatePrefix + address
	return token, len(token) <= telegram.MaxCallbackDataBytes
}

// FormatEmail builds the notification for an inbound email. A blank subject
// is shown as "(no subject)"; an empty downloadURL drops the link and its button.
// The summary is cut short so the whole body stays within MaxMessageRunes.
func FormatEmail(chatID int64, subject, summary, downloadURL, address string) Notification {
	if strings.TrimSpace(subject) == "" {
		subject = "(no subject)"
	}

	head := "📧 <b>" + escapeTruncated(subject, maxSubjectRunes) + "</b>\n\n"

	var tail string
	var row []Action
	if downloadURL != "" {
		tail = "\n\n➡️ <a href=\"" + EscapeHTML(downloadURL) + "\">" + labelDownload + "</a>"
		row = append(row, Action{Label: labelDownload, URL: downloadURL})
	}

	budget := MaxMessageRunes - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail)

	var b strings.Builder
	b.WriteString(head)
	b.WriteString(escapeTruncated(summary, budget))
	b.WriteString(tail)

	if token, ok := DeactivateCallback(address); ok && address != "" {
		row = append(row, Action{Label: labelDeactivate, Callback: token})
	}

	n := Notification{ChatID: chatID, HTML: b.String()}
	if len(row) > 0 {
		n.Rows = [][]Action{row}
	}
	return n
}

// escapeTruncated escapes s, cutting it at a character boundary and adding an
// ellipsis when the escaped text would exceed limit runes. Entities are never split.
func escapeTruncated(s string, limit int) string {
	escaped := EscapeHTML(s)
	if utf8.RuneCountInString(escaped) <= limit {
		return escaped
	}
	if limit <= 0 {
		return ""
	}

	var b strings.Builder
	used := 0
	for _, r := range s {
		piece := EscapeHTML(string(r))
		n := utf8.RuneCountInString(piece)
		if used+n > limit-1 {
			break
		}
		b.WriteString(piece)
		used += n
	}
	b.WriteString("…")
	return b.String()
}

// request converts the notification to a sendMessage call.
func (n Notification) request() tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(n.ChatID, n.HTML)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(n.Rows) == 0 {
		return msg
	}

	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(n.Rows))
	for _, row := range n.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			if a.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(a.Label, a.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Callback))
			}
		}
		keyboard = append(keyboard, buttons)
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	return msg
}
