package tools_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
)

func TestArgsHash_KeyOrderDoesNotMatter(t *testing.T) {
	a := tools.ArgsHash(map[string]any{
		"course_identifier": "badm_554",
		"assignment_id":     int64(7),
		"grades":            map[string]any{"401": "A", "402": "B"},
	})
	b := tools.ArgsHash(map[string]any{
		"grades":            map[string]any{"402": "B", "401": "A"},
		"assignment_id":     int64(7),
		"course_identifier": "badm_554",
	})
	assert.Equal(t, a, b)
}

func TestArgsHash_DistinctArgumentsDiffer(t *testing.T) {
	a := tools.ArgsHash(map[string]any{"course_identifier": "badm_554"})
	b := tools.ArgsHash(map[string]any{"course_identifier": "badm_555"})
	assert.NotEqual(t, a, b)
}

func TestArgsHash_IsHexDigest(t *testing.T) {
	h := tools.ArgsHash(map[string]any{})
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), h)
}
