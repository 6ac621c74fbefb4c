package audit

import "strings"

// SanitizePath replaces every path segment that is entirely digits with
// "***" so numeric Canvas IDs never reach the audit trail. Any query
// string is dropped outright.
func SanitizePath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if isAllDigits(seg) {
			segments[i] = "***"
		}
	}
	return strings.Join(segments, "/")
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
