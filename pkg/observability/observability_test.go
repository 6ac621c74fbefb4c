package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "canvas-mcp", config.ServiceName)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestNewProviderEmptyEndpointStaysDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: true, OTLPEndpoint: ""})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Nil(t, p.tracerProvider)
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	attrs := []attribute.KeyValue{attribute.String("test.key", "test.value")}
	newCtx, finish := p.TrackOperation(context.Background(), "test.operation", attrs...)
	require.NotNil(t, newCtx)

	time.Sleep(1 * time.Millisecond)
	finish(nil)
}

func TestTrackOperationWithError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	_, finish := p.TrackOperation(context.Background(), "test.operation.error")
	finish(errors.New("test error"))
}

func TestTrackMatchesGatewayHook(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	var hook func(context.Context, string) (context.Context, func(error)) = p.Track
	ctx, done := hook(context.Background(), "canvas.get")
	require.NotNil(t, ctx)
	done(nil)
}

func TestRecordMetricsDisabledDoesNotPanic(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	p.RecordRequest(ctx, attribute.String("test", "value"))
	p.RecordError(ctx, errors.New("test"), attribute.String("test", "value"))
	p.RecordDuration(ctx, 100*time.Millisecond, attribute.String("test", "value"))
}

func TestStartSpan(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, span := p.StartSpan(context.Background(), "test.span")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

// Canvas-specific helpers

func TestToolOperation(t *testing.T) {
	attrs := ToolOperation("grade_submission", "a1b2c3d4")
	require.Len(t, attrs, 2)
	require.Equal(t, "canvasmcp.tool.name", string(attrs[0].Key))
	require.Equal(t, "grade_submission", attrs[0].Value.AsString())
}

func TestAPIOperation(t *testing.T) {
	attrs := APIOperation("GET", "/courses/***/assignments")
	require.Len(t, attrs, 2)
	require.Equal(t, "canvasmcp.api.endpoint", string(attrs[1].Key))
	require.Equal(t, "/courses/***/assignments", attrs[1].Value.AsString())
}

func TestGradingOperation(t *testing.T) {
	attrs := GradingOperation("60366", "1440586", 25, true)
	require.Len(t, attrs, 4)
	require.Equal(t, "canvasmcp.grading.requested", string(attrs[2].Key))
	require.EqualValues(t, 25, attrs[2].Value.AsInt64())
	require.True(t, attrs[3].Value.AsBool())
}

func TestUploadOperation(t *testing.T) {
	attrs := UploadOperation("60366", 2048)
	require.Len(t, attrs, 2)
	require.EqualValues(t, 2048, attrs[1].Value.AsInt64())
}

func TestSpanFromContext(t *testing.T) {
	span := SpanFromContext(context.Background())
	require.NotNil(t, span)
}

func TestAddSpanEvent(t *testing.T) {
	AddSpanEvent(context.Background(), "test.event", attribute.String("key", "value"))
}

func TestSetSpanStatus(t *testing.T) {
	SetSpanStatus(context.Background(), errors.New("test error"))
	SetSpanStatus(context.Background(), nil)
}
