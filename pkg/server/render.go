package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/sandbox"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
)

// textResult wraps formatted tool output.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult renders err as an IsError result the host model can read.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: RenderError(err)}},
		IsError: true,
	}
}

// RenderError formats an error for the host: a bracketed machine code,
// the human message, then optional Suggestion and Details lines.
// Argument errors render one line per offending parameter so the host
// can fix them all in a single retry.
func RenderError(err error) string {
	var argErrs tools.ArgErrors
	if errors.As(err, &argErrs) {
		lines := make([]string, len(argErrs))
		for i, ae := range argErrs {
			lines[i] = renderArgError(ae)
		}
		return strings.Join(lines, "\n")
	}
	var argErr *tools.ArgError
	if errors.As(err, &argErr) {
		return renderArgError(argErr)
	}
	var envelope *canvas.Error
	if errors.As(err, &envelope) {
		return renderEnvelope(envelope)
	}
	var plugin *sandbox.Error
	if errors.As(err, &plugin) {
		return fmt.Sprintf("Error [%s]: %s", plugin.Code, plugin.Message)
	}
	return "Error [internal]: " + err.Error()
}

func renderArgError(e *tools.ArgError) string {
	return fmt.Sprintf("Error [%s]: %s (param: %s)", e.Code, e.Message, e.Param)
}

func renderEnvelope(e *canvas.Error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s", e.Code, e.Message)
	if e.Suggestion != "" {
		b.WriteString("\nSuggestion: ")
		b.WriteString(e.Suggestion)
	}
	if details := renderDetails(e); details != "" {
		b.WriteString("\nDetails: ")
		b.WriteString(details)
	}
	return b.String()
}

// renderDetails flattens the detail map plus the HTTP status into one
// deterministic line.
func renderDetails(e *canvas.Error) string {
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Detail[k]))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	return strings.Join(parts, ", ")
}
