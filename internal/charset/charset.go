// Package charset converts email text in legacy character sets to UTF-8.
package charset

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// aliases covers labels seen in mail that the IANA index does not resolve.
var aliases = map[string]encoding.Encoding{
	"latin1":  charmap.ISO8859_1,
	"latin-1": charmap.ISO8859_1,
	"cp1252":  charmap.Windows1252,
	"ansi":    charmap.Windows1252,
}

// Reader returns input decoded from the named charset to UTF-8. Its signature
// matches go-message's CharsetReader hook.
//
// Unknown labels and malformed UTF-8 never fail: the bytes are kept when they
// are valid UTF-8 and otherwise read as ISO-8859-1, so a body is always text.
func Reader(label string, input io.Reader) (io.Reader, error) {
	enc := Lookup(label)
	if enc == nil {
		content, err := io.ReadAll(input)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(toUTF8(content)), nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// Decode converts b from the named charset to a UTF-8 string.
func Decode(label string, b []byte) string {
	r, err := Reader(label, bytes.NewReader(b))
	if err != nil {
		return string(toUTF8(b))
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(toUTF8(b))
	}
	return string(out)
}

// Lookup resolves a charset label. It returns nil for UTF-8, ASCII, an empty
// label, and labels it cannot resolve.
func Lookup(label string) encoding.Encoding {
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), `"'`))
	switch label {
	case "", "utf-8", "utf8", "ascii", "us-ascii":
		return nil
	}
	if enc, ok := aliases[label]; ok {
		return enc
	}
	if enc, err := ianaindex.MIME.Encoding(label); err == nil && enc != nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(label); err == nil && enc != nil {
		return enc
	}
	return nil
}

func toUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), b)
	if err != nil {
		return b
	}
	return out
}
