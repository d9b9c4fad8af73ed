package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/cigen/internal/orchestrator"

// Metrics records node executions and run outcomes.
type Metrics struct {
	nodeExecutions metric.Int64Counter
	nodeDuration   metric.Float64Histogram
	runs           metric.Int64Counter
	generateCalls  metric.Int64Counter
	activeRuns     metric.Int64UpDownCounter
}

// NewMetrics creates the orchestrator instruments on meter.
// If meter is nil, uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.nodeExecutions, err = meter.Int64Counter(
		"cigen.orchestrator.node.executions",
		metric.WithDescription("Node executions by node and result"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	m.nodeDuration, err = meter.Float64Histogram(
		"cigen.orchestrator.node.duration",
		metric.WithDescription("Duration of node executions in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	m.runs, err = meter.Int64Counter(
		"cigen.orchestrator.runs",
		metric.WithDescription("Completed runs by final status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.generateCalls, err = meter.Int64Counter(
		"cigen.orchestrator.generate.calls",
		metric.WithDescription("Generate calls by source"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	m.activeRuns, err = meter.Int64UpDownCounter(
		"cigen.orchestrator.runs.active",
		metric.WithDescription("Runs currently in progress"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordNode(ctx context.Context, tag NodeTag, result string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("node", string(tag)),
		attribute.String("result", result),
	)
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) recordGenerate(ctx context.Context, source GenerateSource) {
	if m == nil {
		return
	}
	m.generateCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source.String())))
}

func (m *Metrics) runStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRuns.Add(ctx, 1)
}

func (m *Metrics) runFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.activeRuns.Add(ctx, -1)
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
