package terminalfeed

import (
	"log/slog"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// builtinRedactPatterns cover the credential shapes that routinely leak into
// log lines: bearer tokens, key/secret assignments, and auth headers.
var builtinRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/=]{8,}`),
	regexp.MustCompile(`(?i)(api[-_]?key|access[-_]?token|auth[-_]?token|secret|password|passwd)(["']?\s*[:=]\s*["']?)[^\s"',;&]+`),
	regexp.MustCompile(`(?i)(authorization|x-api-key|cookie)(\s*:\s*)\S+`),
	regexp.MustCompile(`(?i)sk-[A-Za-z0-9]{16,}`),
}

// Redactor scrubs credential-shaped substrings from feed lines before they
// are buffered or fanned out. Redaction happens once, at publish time, so a
// secret never sits in the backlog waiting for a subscriber.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor builds a redactor from the built-in patterns plus extra
// "||"-separated regular expressions. Patterns that fail to compile are
// skipped with a warning rather than rejected, so one bad operator pattern
// does not disable the feed.
func NewRedactor(extraPatterns string, logger *slog.Logger) *Redactor {
	patterns := append([]*regexp.Regexp(nil), builtinRedactPatterns...)
	for _, raw := range strings.Split(extraPatterns, "||") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		re, err := regexp.Compile(raw)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping invalid redact pattern", "pattern", raw, "error", err)
			}
			continue
		}
		patterns = append(patterns, re)
	}
	return &Redactor{patterns: patterns}
}

// Redact returns line with every credential match replaced.
func (r *Redactor) Redact(line string) string {
	for _, re := range r.patterns {
		line = re.ReplaceAllStringFunc(line, func(match string) string {
			// Keep the key name when the pattern captured one, so the
			// redacted line still says what was scrubbed.
			groups := re.FindStringSubmatch(match)
			if len(groups) >= 3 {
				return groups[1] + groups[2] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return line
}
