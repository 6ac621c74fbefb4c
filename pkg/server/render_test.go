package server_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/sandbox"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/server"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
)

func TestRenderError_EnvelopeWithSuggestionAndDetails(t *testing.T) {
	err := canvas.FromStatus(404, "GET", "/courses/999",
		[]byte(`{"errors":[{"message":"The specified resource does not exist."}]}`))

	out := server.RenderError(err)

	assert.Equal(t, "Error [not-found]: The specified resource does not exist.\n"+
		"Suggestion: Verify the identifier; SIS course codes need the sis_course_id: prefix.\n"+
		"Details: endpoint=/courses/999, method=GET, status=404", out)
}

func TestRenderError_BareEnvelope(t *testing.T) {
	err := canvas.NewError(canvas.CodeValidation, "title must not be empty")

	assert.Equal(t, "Error [validation]: title must not be empty", server.RenderError(err))
}

func TestRenderError_UnwrapsWrappedEnvelope(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", canvas.NewError(canvas.CodeTimeout, "request deadline exceeded"))

	assert.Equal(t, "Error [timeout]: request deadline exceeded", server.RenderError(err))
}

func TestRenderError_ArgumentErrorsOnePerLine(t *testing.T) {
	err := tools.ArgErrors{
		{Code: tools.ErrArgType, Param: "course_id", Message: "expected a string, got object"},
		{Code: tools.ErrArgParse, Param: "points", Message: `cannot parse "ninety" as an integer`},
	}

	out := server.RenderError(err)

	assert.Equal(t, "Error [ERR_ARG_TYPE]: expected a string, got object (param: course_id)\n"+
		`Error [ERR_ARG_PARSE]: cannot parse "ninety" as an integer (param: points)`, out)
}

func TestRenderError_SingleArgumentError(t *testing.T) {
	err := &tools.ArgError{Code: tools.ErrArgMissing, Param: "title", Message: "required parameter is missing"}

	assert.Equal(t, "Error [ERR_ARG_MISSING]: required parameter is missing (param: title)",
		server.RenderError(err))
}

func TestRenderError_PluginError(t *testing.T) {
	err := &sandbox.Error{Code: sandbox.ErrPluginTimeout, Message: "plugin exceeded the 10s time limit"}

	assert.Equal(t, "Error [ERR_PLUGIN_TIMEOUT]: plugin exceeded the 10s time limit",
		server.RenderError(err))
}

func TestRenderError_UnknownErrorFallsBack(t *testing.T) {
	assert.Equal(t, "Error [internal]: boom", server.RenderError(errors.New("boom")))
}
