// Package tools defines the operations the server exposes to the MCP
// host: their argument schemas, the coercions applied before dispatch,
// and the handlers that bind validated arguments to the Canvas gateway.
//
// Handlers return formatted text or an error; they never stringify
// errors themselves. Rendering error envelopes for the host is the
// server's job, so every component below this layer keeps its typed
// error intact.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/anonymizer"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/courses"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/grader"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/observability"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/sandbox"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/uploads"
)

// Deps carries the shared components handlers call into. One instance
// is built at startup and passed to every dispatch.
type Deps struct {
	Client   *canvas.Client
	Courses  *courses.Cache
	Grader   *grader.Runner
	Uploader *uploads.Uploader
	Plugins  *sandbox.Runner
	Anon     *anonymizer.Anonymizer
	Gate     *canvas.FeatureGate
	Health   *observability.HealthTracker
	Logger   *slog.Logger

	Version     string
	Institution string
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// studentLabel renders a user ID for tool output. With anonymization
// active the label is the stable pseudonym; otherwise the bare ID.
func (d *Deps) studentLabel(id int64) string {
	if d.Anon != nil {
		return d.Anon.PseudonymFor(id)
	}
	return fmt.Sprintf("user %d", id)
}

// Handler executes one tool call with already-coerced arguments and
// returns the formatted response text.
type Handler func(ctx context.Context, deps *Deps, args map[string]any) (string, error)

// Spec binds a tool name to its argument schema and handler.
type Spec struct {
	Name        string
	Description string
	Params      []ParamSpec
	Handler     Handler
}

// All returns every tool the server exposes, in registration order.
func All() []Spec {
	return []Spec{
		listCoursesSpec(),
		getCourseDetailsSpec(),
		resolveCourseSpec(),
		listAssignmentsSpec(),
		getAssignmentDetailsSpec(),
		listSubmissionsSpec(),
		getSubmissionSpec(),
		listEnrollmentsSpec(),
		listDiscussionsSpec(),
		getDiscussionEntriesSpec(),
		postAnnouncementSpec(),
		gradeSubmissionSpec(),
		bulkGradeSubmissionsSpec(),
		uploadCourseFileSpec(),
		getPeerReviewStatusSpec(),
		runAnalysisPluginSpec(),
		canvasHealthSpec(),
	}
}

// Typed accessors for coerced arguments. After CoerceArgs the value
// under a declared name is guaranteed to hold the declared Go type, so
// a failed assertion only means the parameter was absent.

func argString(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func argInt(args map[string]any, name string) int64 {
	n, _ := args[name].(int64)
	return n
}

func argFloat(args map[string]any, name string) (float64, bool) {
	f, ok := args[name].(float64)
	return f, ok
}

func argBool(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}

func argList(args map[string]any, name string) []any {
	l, _ := args[name].([]any)
	return l
}

func argMap(args map[string]any, name string) map[string]any {
	m, _ := args[name].(map[string]any)
	return m
}
