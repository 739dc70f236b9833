package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\n\txy"
	if out := SanitizeText(in); out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestSanitizeTextTrimsAndKeepsUnicode(t *testing.T) {
	in := "  entropie élémentaire\x07  "
	if out := SanitizeText(in); out != "entropie élémentaire" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}
