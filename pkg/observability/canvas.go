// Package observability provides Canvas-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for Canvas MCP operations.
var (
	// Tool attributes
	AttrToolName = attribute.Key("canvasmcp.tool.name")
	AttrArgsHash = attribute.Key("canvasmcp.tool.args_hash")

	// Gateway attributes
	AttrAPIMethod   = attribute.Key("canvasmcp.api.method")
	AttrAPIEndpoint = attribute.Key("canvasmcp.api.endpoint")

	// Course context attributes
	AttrCourseID     = attribute.Key("canvasmcp.course.id")
	AttrAssignmentID = attribute.Key("canvasmcp.assignment.id")

	// Grading attributes
	AttrGradingCount  = attribute.Key("canvasmcp.grading.requested")
	AttrGradingDryRun = attribute.Key("canvasmcp.grading.dry_run")

	// Upload attributes
	AttrUploadBytes = attribute.Key("canvasmcp.upload.bytes")

	// Plugin sandbox attributes
	AttrPluginName = attribute.Key("canvasmcp.plugin.name")
)

// ToolOperation creates attributes for one MCP tool invocation. The
// args hash identifies the call without exposing argument values.
func ToolOperation(tool, argsHash string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrToolName.String(tool),
		AttrArgsHash.String(argsHash),
	}
}

// APIOperation creates attributes for one gateway request. The endpoint
// must already be sanitized.
func APIOperation(method, endpoint string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAPIMethod.String(method),
		AttrAPIEndpoint.String(endpoint),
	}
}

// GradingOperation creates attributes for a bulk grading run.
func GradingOperation(courseID, assignmentID string, requested int, dryRun bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCourseID.String(courseID),
		AttrAssignmentID.String(assignmentID),
		AttrGradingCount.Int(requested),
		AttrGradingDryRun.Bool(dryRun),
	}
}

// UploadOperation creates attributes for a file upload.
func UploadOperation(courseID string, sizeBytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCourseID.String(courseID),
		AttrUploadBytes.Int64(sizeBytes),
	}
}

// PluginOperation creates attributes for a sandboxed plugin run.
func PluginOperation(name string, inputBytes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPluginName.String(name),
		attribute.Int("canvasmcp.plugin.input_bytes", inputBytes),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
