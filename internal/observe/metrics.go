// Package observe provides observability primitives for chenxuvox:
// OpenTelemetry metrics, a Prometheus exporter bridge, and gin middleware
// that records request latency.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all chenxuvox metrics.
const meterName = "github.com/chenxu-corpus/chenxuvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// StandardizeDuration tracks ffmpeg transcoding latency.
	StandardizeDuration metric.Float64Histogram

	// AnalyzeDuration tracks ffmpeg signal-metrics extraction latency.
	AnalyzeDuration metric.Float64Histogram

	// GenerationDuration tracks corpus text-generation latency.
	GenerationDuration metric.Float64Histogram

	// --- Counters ---

	// Verdicts counts recording attempts by gating outcome. Use with
	// attribute:
	//   attribute.String("status", ...)
	Verdicts metric.Int64Counter

	// CandidatesStaged counts generated sentences staged for review.
	CandidatesStaged metric.Int64Counter

	// ProviderRequests counts text-generation API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts text-generation API errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. The upper
// buckets cover long ffmpeg runs and slow LLM backends.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StandardizeDuration, err = m.Float64Histogram("chenxuvox.standardize.duration",
		metric.WithDescription("Latency of ffmpeg standardization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalyzeDuration, err = m.Float64Histogram("chenxuvox.analyze.duration",
		metric.WithDescription("Latency of ffmpeg signal-metrics extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("chenxuvox.generation.duration",
		metric.WithDescription("Latency of corpus text generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Verdicts, err = m.Int64Counter("chenxuvox.recording.verdicts",
		metric.WithDescription("Total recording attempts by gating verdict."),
	); err != nil {
		return nil, err
	}
	if met.CandidatesStaged, err = m.Int64Counter("chenxuvox.corpus.candidates_staged",
		metric.WithDescription("Total generated sentences staged for review."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("chenxuvox.provider.requests",
		metric.WithDescription("Total text-generation API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("chenxuvox.provider.errors",
		metric.WithDescription("Total text-generation API errors by provider."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chenxuvox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordVerdict records one recording attempt outcome.
func (m *Metrics) RecordVerdict(ctx context.Context, status string) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderRequest records a text-generation request with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a text-generation error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
