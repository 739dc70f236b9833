package util

import (
	"strings"
	"testing"
)

func TestDisplaySnippetCollapsesWhitespaceAndTruncates(t *testing.T) {
	in := "  a   long\n\nsnippet " + strings.Repeat("word ", 200)
	out := DisplaySnippet(in, 40)
	if strings.Contains(out, "\n") {
		t.Fatalf("newlines should be collapsed: %q", out)
	}
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("long snippet should be truncated with ellipsis: %q", out)
	}
	if len([]rune(out)) > 43 {
		t.Fatalf("snippet too long: %d runes", len([]rune(out)))
	}
}

func TestDisplaySnippetShortPassthrough(t *testing.T) {
	if out := DisplaySnippet("plain text", 420); out != "plain text" {
		t.Fatalf("unexpected snippet: %q", out)
	}
}
