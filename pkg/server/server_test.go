package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/anonymizer"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/courses"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/observability"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/server"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
)

// canvasStub plays Canvas behind the dispatched tools. Tests register
// routes on the mux; the wrapper counts requests so no-write and
// no-call invariants stay assertable through the full MCP round trip.
type canvasStub struct {
	srv      *httptest.Server
	mux      *http.ServeMux
	requests atomic.Int32
}

func newCanvasStub(t *testing.T) *canvasStub {
	t.Helper()
	s := &canvasStub{mux: http.NewServeMux()}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func newServerDeps(t *testing.T, s *canvasStub) *tools.Deps {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	anon := anonymizer.New(anonymizer.WithLogger(logger))
	client, err := canvas.New(canvas.Options{
		BaseURL:    s.srv.URL + "/api/v1",
		Token:      "tok",
		Limiter:    canvas.NewAdaptiveLimiter(1000, 1, 1000, 1000),
		Anonymizer: anon,
		Logger:     logger,
	})
	require.NoError(t, err)
	return &tools.Deps{
		Client:      client,
		Courses:     courses.NewCache(client, time.Hour, logger),
		Anon:        anon,
		Gate:        canvas.NewFeatureGate(""),
		Health:      observability.NewHealthTracker(),
		Logger:      logger,
		Version:     "0.0.0-test",
		Institution: "Test University",
	}
}

// newSession connects an in-process MCP host to a freshly built server
// and returns the live client session.
func newSession(t *testing.T, deps *tools.Deps) *mcp.ClientSession {
	t.Helper()
	srv := server.New(deps)
	clientTr, serverTr := mcp.NewInMemoryTransports()

	_, err := srv.Connect(t.Context(), serverTr)
	require.NoError(t, err)

	host := mcp.NewClient(&mcp.Implementation{Name: "test-host", Version: "0.0.0"}, nil)
	session, err := host.Connect(t.Context(), clientTr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T, want *mcp.TextContent", res.Content[0])
	return tc.Text
}

func TestServer_AdvertisesEveryTool(t *testing.T) {
	deps := newServerDeps(t, newCanvasStub(t))
	session := newSession(t, deps)

	listed, err := session.ListTools(t.Context(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, "%s has no description", tool.Name)
		require.NotNil(t, tool.InputSchema, "%s has no input schema", tool.Name)
		if tool.Name == "grade_submission" {
			assert.Contains(t, tool.InputSchema.Properties, "course_identifier")
			assert.Contains(t, tool.InputSchema.Properties, "rubric_assessment")
		}
	}

	want := make([]string, 0, len(tools.All()))
	for _, spec := range tools.All() {
		want = append(want, spec.Name)
	}
	assert.ElementsMatch(t, want, names)
}

func TestServer_CallTool_DispatchesThroughCatalog(t *testing.T) {
	stub := newCanvasStub(t)
	deps := newServerDeps(t, stub)
	session := newSession(t, deps)

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "resolve_course",
		Arguments: map[string]any{"identifier": " 12345 "},
	})
	require.NoError(t, err)

	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "Canvas ID: 12345 (numeric IDs pass through unchanged)")
	assert.Equal(t, int32(0), stub.requests.Load(), "numeric resolution must not call Canvas")

	st := deps.Health.Status("tool.resolve_course")
	assert.Equal(t, 1, st.Observations)
	assert.Equal(t, 1.0, st.SuccessRate)
}

func TestServer_CallTool_AcceptsStringifiedArguments(t *testing.T) {
	stub := newCanvasStub(t)
	deps := newServerDeps(t, stub)
	session := newSession(t, deps)

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "resolve_course",
		Arguments: `{"identifier": "sis_course_id:BADM_554"}`,
	})
	require.NoError(t, err)

	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res),
		"Resolved: sis_course_id:BADM_554 (Canvas resolves SIS identifiers server-side)")
	assert.Equal(t, int32(0), stub.requests.Load())
}

func TestServer_CallTool_ArgumentFailuresAreToolErrors(t *testing.T) {
	stub := newCanvasStub(t)
	deps := newServerDeps(t, stub)
	session := newSession(t, deps)

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: "resolve_course"})
	require.NoError(t, err, "argument failures must not become protocol errors")

	assert.True(t, res.IsError)
	text := textOf(t, res)
	assert.Contains(t, text, "Error [ERR_ARG_MISSING]")
	assert.Contains(t, text, "(param: identifier)")
	assert.Equal(t, int32(0), stub.requests.Load())
	assert.Zero(t, deps.Health.Status("tool.resolve_course").Observations,
		"rejected arguments are not an operation outcome")
}

func TestServer_CallTool_RendersCanvasEnvelope(t *testing.T) {
	stub := newCanvasStub(t)
	stub.mux.HandleFunc("/api/v1/courses/999", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"message":"The specified resource does not exist."}]}`))
	})
	deps := newServerDeps(t, stub)
	session := newSession(t, deps)

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "get_course_details",
		Arguments: map[string]any{"course_identifier": "999"},
	})
	require.NoError(t, err)

	assert.True(t, res.IsError)
	text := textOf(t, res)
	assert.Contains(t, text, "Error [not-found]: The specified resource does not exist.")
	assert.Contains(t, text, "Suggestion: Verify the identifier")

	st := deps.Health.Status("tool.get_course_details")
	assert.Equal(t, 1, st.Observations)
	assert.Equal(t, 0.0, st.SuccessRate)
}

func TestServer_HealthzEndpoint(t *testing.T) {
	deps := newServerDeps(t, newCanvasStub(t))
	srv := server.New(deps)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status  string `json:"status"`
		Server  string `json:"server"`
		Version string `json:"version"`
		Tools   int    `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "canvas-mcp", body.Server)
	assert.Equal(t, "0.0.0-test", body.Version)
	assert.Equal(t, len(tools.All()), body.Tools)
}

func TestServer_RunHTTPStopsOnContextCancel(t *testing.T) {
	deps := newServerDeps(t, newCanvasStub(t))
	srv := server.New(deps)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.RunHTTP(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
