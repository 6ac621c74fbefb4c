// Package server assembles the MCP surface: it registers the tool
// catalog on an MCP server, coerces and dispatches incoming calls, and
// serves sessions over stdio or streamable HTTP.
//
// This is the only layer that stringifies errors for the host. Tool
// failures become IsError results the host model can read and act on,
// never protocol errors; the session stays usable after a failed call.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/observability"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
)

// serverName identifies this implementation to MCP hosts.
const serverName = "canvas-mcp"

// instructions is advertised to the host alongside the tool list.
const instructions = "Tools for instructors working with a Canvas LMS instance. " +
	"Course parameters accept a numeric Canvas ID, a course code such as " +
	"BADM_554_120248_246794, or a sis_course_id:CODE value. Student identities " +
	"in responses are replaced with stable pseudonyms. Grading tools accept " +
	"dry_run for a validation-only preview that writes nothing."

// Server exposes the tool catalog over MCP transports.
type Server struct {
	deps    *tools.Deps
	specs   []tools.Spec
	tracker *observability.Provider
	logger  *slog.Logger
	mcp     *mcp.Server
}

// Option adjusts Server construction.
type Option func(*Server)

// WithTracker wires OpenTelemetry spans and RED metrics around every
// tool dispatch.
func WithTracker(p *observability.Provider) Option {
	return func(s *Server) { s.tracker = p }
}

// New builds the MCP server and registers every tool in the catalog.
func New(deps *tools.Deps, opts ...Option) *Server {
	s := &Server{
		deps:   deps,
		specs:  tools.All(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: deps.Version},
		&mcp.ServerOptions{Instructions: instructions},
	)
	for _, spec := range s.specs {
		s.mcp.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema(),
		}, s.dispatch(spec))
	}
	return s
}

// RunStdio serves one session over stdin/stdout and blocks until the
// host disconnects or ctx is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "tools", len(s.specs), "version", s.deps.Version)
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves one session over a caller-supplied transport. RunStdio
// and RunHTTP cover the normal transports; Connect exists for
// in-process hosts.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// dispatch adapts one tool spec to the MCP handler contract: decode
// the raw arguments, coerce them against the declared parameters, run
// the handler, render the outcome.
func (s *Server) dispatch(spec tools.Spec) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := decodeArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(err), nil
		}
		args, err := tools.CoerceArgs(spec.Params, raw)
		if err != nil {
			s.logger.Warn("tool arguments rejected", "tool", spec.Name, "error", err)
			return errorResult(err), nil
		}

		hash := tools.ArgsHash(args)
		done := func(error) {}
		if s.tracker != nil {
			ctx, done = s.tracker.TrackOperation(ctx, "tool."+spec.Name,
				observability.ToolOperation(spec.Name, hash)...)
		}

		start := time.Now()
		out, err := spec.Handler(ctx, s.deps, args)
		elapsed := time.Since(start)
		done(err)
		if s.deps.Health != nil {
			s.deps.Health.Record("tool."+spec.Name, elapsed, err == nil)
		}

		if err != nil {
			s.logger.Warn("tool call failed",
				"tool", spec.Name, "args_hash", hash,
				"duration_ms", elapsed.Milliseconds(), "error", err)
			return errorResult(err), nil
		}
		s.logger.Debug("tool call served",
			"tool", spec.Name, "args_hash", hash,
			"duration_ms", elapsed.Milliseconds())
		return textResult(out), nil
	}
}

// decodeArguments normalizes whatever the transport delivered into the
// map CoerceArgs expects. The raw tool path hands over json.RawMessage;
// some hosts double-encode and send the object as a JSON string.
func decodeArguments(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	case json.RawMessage:
		return unmarshalArguments([]byte(t))
	case []byte:
		return unmarshalArguments(t)
	case string:
		return unmarshalArguments([]byte(t))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, canvas.WrapError(canvas.CodeValidation, err, "arguments must be a JSON object")
		}
		return unmarshalArguments(b)
	}
}

func unmarshalArguments(b []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return map[string]any{}, nil
	}
	// Unwrap a double-encoded object; each pass strips one level of
	// string quoting.
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, canvas.WrapError(canvas.CodeValidation, err, "arguments must be a JSON object")
		}
		return unmarshalArguments([]byte(inner))
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, canvas.WrapError(canvas.CodeValidation, err, "arguments must be a JSON object")
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
