package observability_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintforge/sprintforge/pkg/observability"
)

func TestInit_MetricsDisabled(t *testing.T) {
	providers, err := observability.Init(observability.Config{
		ServiceName: "sprintforge-test",
		LogLevel:    slog.LevelInfo,
	})
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)
	require.NotNil(t, providers.Shutdown)

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_MetricsEnabled(t *testing.T) {
	providers, err := observability.Init(observability.Config{
		ServiceName:    "sprintforge-test",
		ServiceVersion: "1.2.3",
		Environment:    "test",
		MetricsEnabled: true,
		SampleRatio:    0.5,
	})
	require.NoError(t, err)

	counter, err := providers.Meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := providers.Tracer.Start(context.Background(), "test-span")
	span.End()

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_ShutdownIsIdempotentWithTimeout(t *testing.T) {
	providers, err := observability.Init(observability.Config{
		ServiceName:        "sprintforge-test",
		ShutdownTimeoutSec: 1,
	})
	require.NoError(t, err)

	require.NoError(t, providers.Shutdown(context.Background()))
}
