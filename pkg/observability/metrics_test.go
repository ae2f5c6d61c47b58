package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sprintforge/sprintforge/pkg/observability"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}

	return metricdata.Metrics{}, false
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	red, err := observability.NewREDMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	red.RecordRequest(ctx, "get_sprints", "ok", 50*time.Millisecond)
	red.RecordRequest(ctx, "get_sprints", "error", 10*time.Millisecond)

	rm := collectMetrics(t, reader)

	requests, ok := findMetric(rm, "sprintforge.requests.total")
	require.True(t, ok)
	assert.Equal(t, int64(2), sumInt64(t, requests))

	errs, ok := findMetric(rm, "sprintforge.errors.total")
	require.True(t, ok)
	assert.Equal(t, int64(1), sumInt64(t, errs))

	duration, ok := findMetric(rm, "sprintforge.request.duration.seconds")
	require.True(t, ok)

	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}

	assert.Equal(t, uint64(2), count)
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	red, err := observability.NewREDMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	done := red.TrackInflight(ctx, "generate_sprint_report")

	rm := collectMetrics(t, reader)
	inflight, ok := findMetric(rm, "sprintforge.inflight.requests")
	require.True(t, ok)
	assert.Equal(t, int64(1), sumInt64(t, inflight))

	done()

	rm = collectMetrics(t, reader)
	inflight, ok = findMetric(rm, "sprintforge.inflight.requests")
	require.True(t, ok)
	assert.Equal(t, int64(0), sumInt64(t, inflight))
}

func TestRegisterCacheGauges(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	snapshot := observability.CacheSnapshot{Entries: 42, Hits: 100, Misses: 7}

	err := observability.RegisterCacheGauges(provider.Meter("test"), func() observability.CacheSnapshot {
		return snapshot
	})
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	entries, ok := findMetric(rm, "sprintforge.cache.entries")
	require.True(t, ok)

	gauge, ok := entries.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(42), gauge.DataPoints[0].Value)

	hits, ok := findMetric(rm, "sprintforge.cache.hits")
	require.True(t, ok)
	assert.Equal(t, int64(100), sumInt64(t, hits))

	misses, ok := findMetric(rm, "sprintforge.cache.misses")
	require.True(t, ok)
	assert.Equal(t, int64(7), sumInt64(t, misses))
}
