package anonymizer

import "regexp"

// PII patterns scrubbed from free-text bodies. Replacement tokens contain
// no digits or '@', so scrubbing is idempotent by construction.
var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}\b`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// ScrubText redacts email addresses, phone numbers, and SSNs from a text
// body. Used on discussion messages, where identifying data hides in
// prose rather than in structured fields.
func (a *Anonymizer) ScrubText(s string) string {
	s = emailPattern.ReplaceAllString(s, "[EMAIL_REDACTED]")
	s = ssnPattern.ReplaceAllString(s, "[SSN_REDACTED]")
	s = phonePattern.ReplaceAllString(s, "[PHONE_REDACTED]")
	return s
}
