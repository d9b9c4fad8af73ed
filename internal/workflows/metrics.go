package workflows

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/cigen/internal/workflows"

// OpenTelemetry instruments.
var (
	batchCounter         metric.Int64Counter
	repoEvaluationCount  metric.Int64Counter
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
)

// Prometheus collectors scraped from the worker's /metrics endpoint.
var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cigen_runs_total",
		Help: "Repository evaluations by final status.",
	}, []string{"status"})

	runsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cigen_runs_in_flight",
		Help: "Repository evaluations currently running.",
	})
)

// Collectors returns the Prometheus collectors updated by the activities.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{runsTotal, runsInFlight}
}

func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	batchCounter, err = meter.Int64Counter(
		"cigen.workflows.batch.executions",
		metric.WithDescription("Batch evaluation workflow executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create batch counter: %v", err))
	}

	repoEvaluationCount, err = meter.Int64Counter(
		"cigen.workflows.repository.evaluations",
		metric.WithDescription("Repository evaluations by final status"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create evaluation counter: %v", err))
	}

	activityDuration, err = meter.Float64Histogram(
		"cigen.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"cigen.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}
}

func init() {
	initMetrics()
}
