package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactBotToken(t *testing.T) {
	out, changed := RedactPII("token 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw0 leaked")
	if !changed || !strings.Contains(out, "[REDACTED_TOKEN]") || strings.Contains(out, "AAHdq") {
		t.Fatalf("RedactPII() = %q", out)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("hello\n  world", 0); got != "hello world" {
		t.Fatalf("Preview() = %q", got)
	}
	if got := Preview("abcdefgh", 3); got != "abc…" {
		t.Fatalf("Preview() = %q", got)
	}
	if got := Preview("mail sam@example.com", 100); strings.Contains(got, "sam@") {
		t.Fatalf("Preview() leaked email: %q", got)
	}
}
