package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/chenxu-corpus/chenxuvox/internal/observe"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error: %v", err)
	}
	return m, reader
}

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)

	if m.StandardizeDuration == nil || m.AnalyzeDuration == nil || m.GenerationDuration == nil {
		t.Error("histogram instruments should be non-nil")
	}
	if m.Verdicts == nil || m.CandidatesStaged == nil || m.ProviderRequests == nil || m.ProviderErrors == nil {
		t.Error("counter instruments should be non-nil")
	}
	if m.HTTPRequestDuration == nil {
		t.Error("HTTPRequestDuration should be non-nil")
	}
}

func TestRecordVerdict(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordVerdict(ctx, "accepted")
	m.RecordVerdict(ctx, "accepted")
	m.RecordVerdict(ctx, "too_quiet")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	sum := findSum(t, &rm, "chenxuvox.recording.verdicts")
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("verdict counter total = %d, want 3", total)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("verdict counter has %d attribute sets, want 2", len(sum.DataPoints))
	}
}

func TestRecordProviderRequestAndError(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "ok")
	m.RecordProviderError(ctx, "openai")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	reqs := findSum(t, &rm, "chenxuvox.provider.requests")
	if len(reqs.DataPoints) != 1 || reqs.DataPoints[0].Value != 1 {
		t.Errorf("provider requests = %+v, want one data point of 1", reqs.DataPoints)
	}
	errs := findSum(t, &rm, "chenxuvox.provider.errors")
	if len(errs.DataPoints) != 1 || errs.DataPoints[0].Value != 1 {
		t.Errorf("provider errors = %+v, want one data point of 1", errs.DataPoints)
	}
}

// findSum locates a named Int64 sum in the collected metrics.
func findSum(t *testing.T, rm *metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("metric %q is %T, want Sum[int64]", name, m.Data)
				}
				return sum
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return metricdata.Sum[int64]{}
}
