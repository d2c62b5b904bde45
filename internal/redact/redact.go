// Package redact removes credentials, infrastructure details and patient
// identifiers from text before it is logged, stored as a job error or
// returned to a client.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Redaction placeholders.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedTextPlaceholder       = "[REDACTED_TEXT]"
)

// minFragmentLen is the shortest fragment of submitted text that Scrub removes.
const minFragmentLen = 12

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Rules are applied in order; connection strings must run before host and
// path patterns so the whole credential is replaced.
var rules = []rule{
	{regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mysql|mongodb|redis|rediss)://[^\s]+`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|key|access|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED_ID]"},
	{regexp.MustCompile(`\b\d{15}\b`), "[REDACTED_ID]"},
	{regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\b\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`), "[REDACTED_PHONE]"},
	{regexp.MustCompile(`https?://[^\s"']+`), "[REDACTED_URL]"},
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`), RedactedPathPlaceholder},
	{regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP)[\s\w,*()]+(?:FROM|INTO|SET|TABLE)(?:[\s\w,*()='"$?]+)?`), "[REDACTED_SQL]"},
	{regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?::\d{1,5})?\b`), "[REDACTED_HOST]"},
}

// String redacts sensitive information from input.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// ErrorWithout redacts err after removing any fragment of the sensitive
// texts it echoes, such as a submitted transcript quoted back by a provider.
func ErrorWithout(err error, sensitive ...string) string {
	if err == nil {
		return ""
	}
	return String(Scrub(err.Error(), sensitive...))
}

// Scrub replaces every occurrence in input of a sensitive text, or of any of
// its lines or sentences at least minFragmentLen characters long.
func Scrub(input string, sensitive ...string) string {
	if input == "" {
		return input
	}

	fragments := make([]string, 0, len(sensitive))
	for _, s := range sensitive {
		fragments = append(fragments, fragmentsOf(s)...)
	}
	// Longest first so a whole text is replaced before its pieces.
	sort.Slice(fragments, func(i, j int) bool { return len(fragments[i]) > len(fragments[j]) })

	result := input
	for _, f := range fragments {
		result = strings.ReplaceAll(result, f, RedactedTextPlaceholder)
	}
	return result
}

func fragmentsOf(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) < minFragmentLen {
		return nil
	}

	out := []string{text}
	pieces := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '.' || r == '!' || r == '?' || r == ';'
	})
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if len(p) >= minFragmentLen && p != text {
			out = append(out, p)
		}
	}
	return out
}
