package tools

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

// Helpers for reading the anonymized JSON trees the gateway returns.
// Collection handlers format from the tree rather than decoding into
// structs, so pseudonymized fields flow through untouched.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func strAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numAt(m map[string]any, key string) (float64, bool) {
	f, ok := m[key].(float64)
	return f, ok
}

func intAt(m map[string]any, key string) int64 {
	f, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return int64(f)
}

func boolAt(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func listAt(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatDate renders a Canvas ISO 8601 timestamp for tool output.
// Unparseable input passes through unchanged.
func formatDate(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if d, derr := time.Parse("2006-01-02", s); derr == nil {
			return d.Format("2006-01-02")
		}
		return s
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func timeStr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// truncate caps s at max runes, marking the cut.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// stripTags flattens Canvas HTML bodies to plain text for tool output:
// tags become spaces, entities decode, whitespace collapses.
func stripTags(s string) string {
	if strings.ContainsRune(s, '<') {
		var b strings.Builder
		b.Grow(len(s))
		inTag := false
		for _, r := range s {
			switch {
			case r == '<':
				inTag = true
				b.WriteRune(' ')
			case r == '>':
				inTag = false
			case !inTag:
				b.WriteRune(r)
			}
		}
		s = b.String()
	}
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
