package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	tokenPattern = regexp.MustCompile(`\b\d{6,12}:[A-Za-z0-9_-]{30,}\b`)
)

// RedactPII masks common high-risk PII patterns and bot tokens.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	// Bot tokens start with a numeric id that the phone pattern would otherwise eat.
	next := tokenPattern.ReplaceAllString(out, "[REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Preview returns a redacted, single-line excerpt of at most maxRunes runes for logs and
// the event feed. Chat text is never logged in full.
func Preview(text string, maxRunes int) string {
	redacted, _ := RedactPII(text)
	redacted = strings.Join(strings.Fields(redacted), " ")
	runes := []rune(redacted)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return redacted
	}
	return string(runes[:maxRunes]) + "…"
}
