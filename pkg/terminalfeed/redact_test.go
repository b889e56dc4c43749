package terminalfeed

import (
	"strings"
	"testing"
)

func TestRedactBuiltinPatterns(t *testing.T) {
	r := NewRedactor("", nil)

	tests := []struct {
		name   string
		line   string
		secret string
	}{
		{"bearer token", "Authorization: Bearer sk_live_4f8a9b2c3d", "sk_live_4f8a9b2c3d"},
		{"api key assignment", `api_key="abc123def456"`, "abc123def456"},
		{"password assignment", "password=hunter2secret", "hunter2secret"},
		{"auth header", "x-api-key: topsecretvalue", "topsecretvalue"},
		{"openai style key", "using key sk-abcdefghij0123456789", "sk-abcdefghij0123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Redact(tt.line)
			if strings.Contains(got, tt.secret) {
				t.Fatalf("secret survived: %q", got)
			}
			if !strings.Contains(got, redactedPlaceholder) {
				t.Fatalf("no placeholder in %q", got)
			}
		})
	}
}

func TestRedactKeepsKeyName(t *testing.T) {
	r := NewRedactor("", nil)

	got := r.Redact("connecting with api_key=supersecret to backend")
	if !strings.Contains(got, "api_key=") {
		t.Fatalf("key name lost: %q", got)
	}
	if !strings.HasPrefix(got, "connecting with ") || !strings.HasSuffix(got, " to backend") {
		t.Fatalf("surrounding text damaged: %q", got)
	}
}

func TestRedactLeavesOrdinaryLinesAlone(t *testing.T) {
	r := NewRedactor("", nil)

	line := "request completed status=200 duration=12ms path=/v1/chat/completions"
	if got := r.Redact(line); got != line {
		t.Fatalf("harmless line changed: %q", got)
	}
}

func TestRedactExtraPatterns(t *testing.T) {
	r := NewRedactor(`internal-[0-9]{4}||[unclosed`, nil)

	got := r.Redact("ticket internal-1234 escalated")
	if strings.Contains(got, "internal-1234") {
		t.Fatalf("extra pattern not applied: %q", got)
	}
	// The invalid second pattern is skipped, not fatal.
	if got := r.Redact("plain line"); got != "plain line" {
		t.Fatalf("invalid pattern corrupted redactor: %q", got)
	}
}
