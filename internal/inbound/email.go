// Package inbound turns raw inbound email into the text and recipient used
// to notify the owner of a burner address.
package inbound

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/jarrod-lowe/burner-notify/internal/charset"
	"github.com/jarrod-lowe/burner-notify/internal/htmlstrip"
)

// DefaultSubject is used when a message carries no usable subject.
const DefaultSubject = "(no subject)"

// maxPartBytes bounds how much of a single body part is read.
const maxPartBytes = 4 << 20

func init() {
	message.CharsetReader = charset.Reader
}

// Email is the parsed form of an inbound message. It is never persisted.
type Email struct {
	MessageID string
	Subject   string
	From      string
	// Recipient is the first recipient, lowercased.
	Recipient string
	Date      time.Time
	Text      string
	HTML      string
}

// SummarizableText returns the plain text body, or the HTML body reduced to
// text when there is no usable plain part.
func (e *Email) SummarizableText() string {
	if strings.TrimSpace(e.Text) != "" {
		return e.Text
	}
	if e.HTML != "" {
		return htmlstrip.String(e.HTML)
	}
	return ""
}

// Parse reads a raw RFC 5322 message. It fails with ErrUnparseable when the
// header cannot be read or no recipient can be found.
func Parse(raw []byte) (*Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}
	defer mr.Close()

	header := mr.Header
	e := &Email{
		Subject:   subject(header),
		From:      firstAddress(header, "From"),
		Recipient: recipient(header),
	}
	if id, err := header.MessageID(); err == nil {
		e.MessageID = id
	}
	if date, err := header.Date(); err == nil {
		e.Date = date
	}
	if e.Recipient == "" {
		return nil, fmt.Errorf("%w: no recipient", ErrUnparseable)
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			// Keep whatever body was read before a malformed part.
			break
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType := "text/plain"
		if h.Get("Content-Type") != "" {
			if contentType, _, err = h.ContentType(); err != nil {
				continue
			}
		}

		switch contentType {
		case "text/plain":
			if e.Text == "" {
				e.Text = readPart(p.Body)
			}
		case "text/html":
			if e.HTML == "" {
				e.HTML = readPart(p.Body)
			}
		}
	}

	return e, nil
}

func readPart(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxPartBytes))
	if err != nil && len(body) == 0 {
		return ""
	}
	return string(body)
}

func subject(h mail.Header) string {
	s, err := h.Subject()
	if err != nil {
		s = h.Get("Subject")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSubject
	}
	return s
}

// recipient returns the first To address, falling back to the delivery
// headers set by the receiving MTA.
func recipient(h mail.Header) string {
	for _, key := range []string{"To", "Delivered-To", "X-Original-To"} {
		if addr := firstAddress(h, key); addr != "" {
			return strings.ToLower(addr)
		}
	}
	return ""
}

func firstAddress(h mail.Header, key string) string {
	list, err := h.AddressList(key)
	if err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].Address)
	}
	// Bare addresses without a display name sometimes fail strict parsing.
	raw := strings.TrimSpace(h.Get(key))
	if first, _, _ := strings.Cut(raw, ","); strings.Contains(first, "@") {
		first = strings.TrimSpace(first)
		if i := strings.LastIndex(first, "<"); i >= 0 {
			first = strings.TrimSuffix(first[i+1:], ">")
		}
		return strings.TrimSpace(first)
	}
	return ""
}
