// Package htmlstrip reduces HTML email bodies to readable plain text.
package htmlstrip

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skipElements are elements whose text content is discarded.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"title":    true,
	"template": true,
}

// blockElements start a new line.
var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "blockquote": true,
	"pre": true, "table": true, "tr": true, "ul": true, "ol": true,
	"section": true, "article": true, "header": true, "footer": true,
	"hr": true, "br": true,
}

// cellElements are separated by a space within a row.
var cellElements = map[string]bool{
	"td": true, "th": true,
}

// String returns the visible text of an HTML document.
func String(src string) string {
	return Text(strings.NewReader(src))
}

// Text reads an HTML document and returns its visible text. Entities are
// decoded, runs of whitespace collapse to one space, and block elements
// become line breaks. Markup that fails to tokenize ends the text early.
func Text(r io.Reader) string {
	w := &writer{}
	z := html.NewTokenizer(r)
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return w.String()

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch {
			case skipElements[tag]:
				if tt == html.StartTagToken {
					skipDepth++
				}
			case blockElements[tag]:
				w.newline()
			case cellElements[tag]:
				w.space()
			case tag == "img" && hasAttr && skipDepth == 0:
				if alt := attr(z, "alt"); alt != "" {
					w.text(alt)
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipElements[tag]:
				if skipDepth > 0 {
					skipDepth--
				}
			case blockElements[tag]:
				w.newline()
			}

		case html.TextToken:
			if skipDepth == 0 {
				w.text(string(z.Text()))
			}
		}
	}
}

// attr returns the value of the named attribute of the current tag.
func attr(z *html.Tokenizer, key string) string {
	for {
		k, v, more := z.TagAttr()
		if string(k) == key {
			return string(v)
		}
		if !more {
			return ""
		}
	}
}

// writer accumulates text with collapsed whitespace.
type writer struct {
	b           strings.Builder
	pendingNL   bool
	pendingSP   bool
	wroteOutput bool
}

func (w *writer) newline() {
	if w.wroteOutput {
		w.pendingNL = true
	}
}

func (w *writer) space() {
	if w.wroteOutput {
		w.pendingSP = true
	}
}

func (w *writer) text(s string) {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\u00a0':
			w.space()
			continue
		}
		if w.pendingNL {
			w.b.WriteByte('\n')
		} else if w.pendingSP {
			w.b.WriteByte(' ')
		}
		w.pendingNL, w.pendingSP = false, false
		w.b.WriteRune(r)
		w.wroteOutput = true
	}
}

func (w *writer) String() string {
	return w.b.String()
}
