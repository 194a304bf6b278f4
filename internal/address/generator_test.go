package address

import (
	"bytes"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	g := NewGenerator(" Mail.Example.ORG ", 4)
	g.rand = bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef})

	addr, err := g.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if addr != "deadbeef@mail.example.org" {
		t.Errorf("Next() = %q, want %q", addr, "deadbeef@mail.example.org")
	}
	if g.Domain() != "mail.example.org" {
		t.Errorf("Domain() = %q, want %q", g.Domain(), "mail.example.org")
	}
}

func TestGenerator_SizeFloor(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{size: 0, want: DefaultLocalPartBytes},
		{size: 2, want: DefaultLocalPartBytes},
		{size: 3, want: 3},
		{size: 16, want: 16},
	}

	for _, tt := range tests {
		g := NewGenerator("example.com", tt.size)
		if g.size != tt.want {
			t.Errorf("NewGenerator(size=%d).size = %d, want %d", tt.size, g.size, tt.want)
		}
	}
}

func TestGenerator_ShortRead(t *testing.T) {
	g := NewGenerator("example.com", 8)
	g.rand = bytes.NewReader([]byte{1, 2})

	if _, err := g.Next(); err == nil {
		t.Error("Next() expected error on short read")
	}
}

func TestGenerator_Unique(t *testing.T) {
	g := NewGenerator("example.com", DefaultLocalPartBytes)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		addr, err := g.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if seen[addr] {
			t.Fatalf("duplicate address %q", addr)
		}
		seen[addr] = true
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  ABC123@Example.COM\t"); got != "abc123@example.com" {
		t.Errorf("Normalize() = %q, want %q", got, "abc123@example.com")
	}
}
