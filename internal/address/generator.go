package address

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultLocalPartBytes gives 64 bits of entropy per address.
	DefaultLocalPartBytes = 8
	// MinLocalPartBytes is the smallest accepted local part size.
	MinLocalPartBytes = 3
)

// Generator produces random addresses on a fixed domain.
type Generator struct {
	domain string
	size   int
	rand   io.Reader
}

// NewGenerator creates a Generator using crypto/rand. A size below
// MinLocalPartBytes is replaced with DefaultLocalPartBytes.
func NewGenerator(domain string, size int) *Generator {
	if size < MinLocalPartBytes {
		size = DefaultLocalPartBytes
	}
	return &Generator{
		domain: strings.ToLower(strings.TrimSpace(domain)),
		size:   size,
		rand:   rand.Reader,
	}
}

// Domain returns the domain addresses are generated on.
func (g *Generator) Domain() string {
	return g.domain
}

// Next returns a new lowercase address of the form <hex>@<domain>.
func (g *Generator) Next() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf) + "@" + g.domain, nil
}
