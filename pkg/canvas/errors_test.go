package canvas_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

func TestFromStatus_MapsTaxonomy(t *testing.T) {
	cases := []struct {
		status     int
		wantCode   canvas.Code
		suggestion bool
	}{
		{401, canvas.CodeUnauthorized, true},
		{403, canvas.CodePermissions, true},
		{404, canvas.CodeNotFound, true},
		{409, canvas.CodeDuplicate, false},
		{422, canvas.CodeInvalidParameter, false},
		{429, canvas.CodeRateLimited, true},
		{500, canvas.CodeCanvasAPI, false},
		{503, canvas.CodeCanvasAPI, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			err := canvas.FromStatus(tc.status, "GET", "/courses/1", nil)
			assert.Equal(t, tc.wantCode, err.Code)
			assert.Equal(t, tc.status, err.StatusCode)
			assert.Equal(t, "GET", err.Detail["method"])
			assert.Equal(t, "/courses/1", err.Detail["endpoint"])
			if tc.suggestion {
				assert.NotEmpty(t, err.Suggestion)
			}
		})
	}
}

func TestFromStatus_MessageShapes(t *testing.T) {
	t.Run("errors array", func(t *testing.T) {
		body := []byte(`{"errors":[{"message":"The specified resource does not exist."}]}`)
		err := canvas.FromStatus(404, "GET", "/courses/999", body)
		assert.Equal(t, "The specified resource does not exist.", err.Message)
	})

	t.Run("top level message", func(t *testing.T) {
		body := []byte(`{"message":"Invalid access token."}`)
		err := canvas.FromStatus(401, "GET", "/courses", body)
		assert.Equal(t, "Invalid access token.", err.Message)
	})

	t.Run("field keyed errors sorted", func(t *testing.T) {
		body := []byte(`{"errors":{"name":[{"message":"too long"}],"grade":[{"message":"out of range"}]}}`)
		err := canvas.FromStatus(422, "PUT", "/submissions/1", body)
		assert.Equal(t, "grade: out of range; name: too long", err.Message)
	})

	t.Run("unparseable body falls back", func(t *testing.T) {
		err := canvas.FromStatus(500, "GET", "/courses", []byte("<html>oops</html>"))
		assert.Contains(t, err.Message, "HTTP 500")
		assert.Contains(t, err.Message, "GET /courses")
	})
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := canvas.NewError(canvas.CodeNotFound, "course 42 not found")

	assert.True(t, errors.Is(err, &canvas.Error{Code: canvas.CodeNotFound}))
	assert.False(t, errors.Is(err, &canvas.Error{Code: canvas.CodeTimeout}))
	// An empty target code matches any envelope.
	assert.True(t, errors.Is(err, &canvas.Error{}))
}

func TestWrapError_PreservesChain(t *testing.T) {
	inner := errors.New("connection refused")
	err := canvas.WrapError(canvas.CodeNetwork, inner, "canvas request failed")

	require.ErrorIs(t, err, inner)
	env, ok := canvas.AsError(fmt.Errorf("outer: %w", err))
	require.True(t, ok)
	assert.Equal(t, canvas.CodeNetwork, env.Code)
}

func TestError_DetailAndSuggestionChaining(t *testing.T) {
	err := canvas.NewError(canvas.CodeValidation, "bad argument").
		WithDetail("parameter", "course_identifier").
		WithSuggestion("Pass a numeric ID, a course code, or sis_course_id:CODE.")

	assert.Equal(t, "course_identifier", err.Detail["parameter"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestErrorTag_AuditSafety(t *testing.T) {
	t.Run("status code wins", func(t *testing.T) {
		err := canvas.FromStatus(404, "GET", "/courses/1", nil)
		assert.Equal(t, "404", canvas.ErrorTag(err))
	})

	t.Run("envelope code when no status", func(t *testing.T) {
		err := canvas.NewError(canvas.CodeTimeout, "deadline exceeded while talking to canvas")
		assert.Equal(t, "timeout", canvas.ErrorTag(err))
	})

	t.Run("go type name for foreign errors", func(t *testing.T) {
		tag := canvas.ErrorTag(errors.New("contains jane@example.com"))
		assert.NotContains(t, tag, "@")
		assert.Equal(t, "*errors.errorString", tag)
	})
}
