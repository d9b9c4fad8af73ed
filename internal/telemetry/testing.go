package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory.
type TestTelemetry struct {
	*Telemetry
	Recorder *tracetest.SpanRecorder
	Reader   *sdkmetric.ManualReader
}

// NewTestTelemetry returns enabled telemetry backed by a span recorder and a
// manual metric reader.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	rec := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			config: cfg,
			tp:     sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)),
			mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			health: HealthStatus{Healthy: true},
		},
		Recorder: rec,
		Reader:   reader,
	}
}

// Span returns the first ended span called name, or nil.
func (t *TestTelemetry) Span(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// SpanNames lists ended spans in end order.
func (t *TestTelemetry) SpanNames() []string {
	var names []string
	for _, s := range t.Recorder.Ended() {
		names = append(names, s.Name())
	}
	return names
}

// AssertSpanAttribute fails tb unless span name ended with key set to want.
// Int attributes compare as int64.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	s := t.Span(name)
	if s == nil {
		tb.Fatalf("span %q not recorded, have %v", name, t.SpanNames())
	}
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			if got := kv.Value.AsInterface(); got != want {
				tb.Errorf("span %q %s = %v, want %v", name, key, got, want)
			}
			return
		}
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

// Int64Sum collects and sums the int64 counter name over the data points
// whose attributes include match.
func (t *TestTelemetry) Int64Sum(ctx context.Context, name string, match ...attribute.KeyValue) int64 {
	var rm metricdata.ResourceMetrics
	if err := t.Reader.Collect(ctx, &rm); err != nil {
		return 0
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if includes(dp.Attributes, match) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func includes(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		if v, ok := set.Value(kv.Key); !ok || v != kv.Value {
			return false
		}
	}
	return true
}
