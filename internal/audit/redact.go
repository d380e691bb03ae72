package audit

import "regexp"

// sensitivePattern matches substrings that must never reach an audit log or
// a client-facing message.
var sensitivePattern = regexp.MustCompile(`(?i)(password|passwd|secret|token|credential|api[-_ ]?key|\bkey\b)\S*`)

// Redact masks sensitive substrings in a failure reason before it is logged
// or persisted.
func Redact(reason string) string {
	return sensitivePattern.ReplaceAllString(reason, "[redacted]")
}
