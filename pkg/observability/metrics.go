package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "sprintforge.requests.total"
	metricRequestDuration  = "sprintforge.request.duration.seconds"
	metricErrorsTotal      = "sprintforge.errors.total"
	metricInflightRequests = "sprintforge.inflight.requests"

	metricCacheEntries = "sprintforge.cache.entries"
	metricCacheHits    = "sprintforge.cache.hits"
	metricCacheMisses  = "sprintforge.cache.misses"

	attrOp     = "op"
	attrStatus = "status"

	statusError = "error"
)

// durationBucketBoundaries covers 10ms to 60s: cache hits answer in
// milliseconds while cold reports fan out to several upstream calls.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	reqTotal, err := mt.Int64Counter(metricRequestsTotal,
		metric.WithDescription("Total number of requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestsTotal, err)
	}

	reqDuration, err := mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestDuration, err)
	}

	errTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightRequests,
		metric.WithDescription("Number of in-flight requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightRequests, err)
	}

	return &REDMetrics{
		requestsTotal:    reqTotal,
		requestDuration:  reqDuration,
		errorsTotal:      errTotal,
		inflightRequests: inflight,
	}, nil
}

// RecordRequest records a completed request with its operation, status, and duration.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == statusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
		))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// CacheSnapshot is one observation of the cache tier counters.
type CacheSnapshot struct {
	Entries int64
	Hits    int64
	Misses  int64
}

// RegisterCacheGauges exposes cache counters as observable gauges, sampled
// from snapshot on every metrics collection.
func RegisterCacheGauges(mt metric.Meter, snapshot func() CacheSnapshot) error {
	entries, err := mt.Int64ObservableGauge(metricCacheEntries,
		metric.WithDescription("Entries held in the in-process cache tier"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheEntries, err)
	}

	hits, err := mt.Int64ObservableCounter(metricCacheHits,
		metric.WithDescription("Cache lookups answered from a tier"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheHits, err)
	}

	misses, err := mt.Int64ObservableCounter(metricCacheMisses,
		metric.WithDescription("Cache lookups answered upstream"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheMisses, err)
	}

	_, err = mt.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		s := snapshot()

		observer.ObserveInt64(entries, s.Entries)
		observer.ObserveInt64(hits, s.Hits)
		observer.ObserveInt64(misses, s.Misses)

		return nil
	}, entries, hits, misses)
	if err != nil {
		return fmt.Errorf("register cache gauges: %w", err)
	}

	return nil
}
