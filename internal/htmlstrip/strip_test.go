package htmlstrip

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"paragraph", "<p>Hello, world!</p>", "Hello, world!"},
		{"nested inline", "<div><p>Hello <b>bold</b> text</p></div>", "Hello bold text"},
		{"blocks become lines", "<p>Before</p><p>After</p>", "Before\nAfter"},
		{"script skipped", "<p>Before</p><script>var x = 1;</script><p>After</p>", "Before\nAfter"},
		{"style skipped", "<style>p { color: red; }</style><p>Visible</p>", "Visible"},
		{"head skipped", "<html><head><title>T</title></head><body>Body</body></html>", "Body"},
		{"img alt", `<p>Logo: <img src="x.png" alt="ACME"></p>`, "Logo: ACME"},
		{"img without alt", `<p>A<img src="x.png">B</p>`, "AB"},
		{"collapse whitespace", "<p>  lots   of\n\n spaces  </p>", "lots of spaces"},
		{"br", "line one<br>line two<br/>line three", "line one\nline two\nline three"},
		{"entities", "<p>Fish &amp; chips &lt;3 &nbsp;x</p>", "Fish & chips <3 x"},
		{"table cells", "<table><tr><td>Total</td><td>$5</td></tr></table>", "Total $5"},
		{"link text only", `<a href="https://example.com/track">Click here</a>`, "Click here"},
		{"no html", "just text", "just text"},
		{"empty", "", ""},
		{"only markup", "<div><br></div>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(tt.input); got != tt.want {
				t.Errorf("String(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestText_NoMarkupLeaks(t *testing.T) {
	input := `<html><body><div class="x" onclick="evil()"><span>Order #42 shipped</span></div></body></html>`
	got := Text(strings.NewReader(input))
	if strings.ContainsAny(got, "<>") {
		t.Errorf("Text() = %q, contains markup", got)
	}
	if got != "Order #42 shipped" {
		t.Errorf("Text() = %q, want %q", got, "Order #42 shipped")
	}
}
