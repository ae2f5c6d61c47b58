package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sprintforge/sprintforge/pkg/observability"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	return line
}

func TestTracingHandler_ServiceAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	handler := observability.NewTracingHandler(
		slog.NewJSONHandler(&buf, nil), "sprintforge", "staging")
	logger := slog.New(handler)

	logger.Info("hello")

	line := logLine(t, &buf)
	assert.Equal(t, "sprintforge", line["service"])
	assert.Equal(t, "staging", line["env"])
	assert.NotContains(t, line, "trace_id")
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	handler := observability.NewTracingHandler(
		slog.NewJSONHandler(&buf, nil), "sprintforge", "")
	logger := slog.New(handler)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "in span")

	line := logLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["span_id"])
}

func TestTracingHandler_WithGroupKeepsServiceTopLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	handler := observability.NewTracingHandler(
		slog.NewJSONHandler(&buf, nil), "sprintforge", "prod")
	logger := slog.New(handler).WithGroup("request")

	logger.Info("grouped", "tool", "get_sprints")

	line := logLine(t, &buf)
	assert.Equal(t, "sprintforge", line["service"])

	group, ok := line["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "get_sprints", group["tool"])
}
