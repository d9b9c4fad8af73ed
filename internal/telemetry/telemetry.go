package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// HealthStatus reports whether telemetry is exporting.
type HealthStatus struct {
	Healthy   bool
	Degraded  bool
	LastError string
}

// Telemetry owns the tracer and meter providers of a cigen process. A
// provider that cannot be built leaves the process on the global no-op
// provider and marks telemetry degraded; startup continues.
type Telemetry struct {
	config *Config
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	logs   log.LoggerProvider

	mu     sync.Mutex
	health HealthStatus
}

// New validates cfg and starts the enabled providers.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg, health: HealthStatus{Healthy: true}}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.degrade(err)
	} else {
		t.tp = tp
		otel.SetTracerProvider(tp)
	}
	if cfg.Metrics {
		if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
			t.degrade(err)
		} else {
			t.mp = mp
			otel.SetMeterProvider(mp)
		}
	}

	// Logs go through whatever provider the process registered globally.
	t.logs = global.GetLoggerProvider()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Tracer returns a tracer for the instrumentation scope name.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tp == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tp.Tracer(name, opts...)
}

// Meter returns a meter for the instrumentation scope name.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.mp == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.mp.Meter(name, opts...)
}

// LoggerProvider returns the provider for the zap bridge, or nil when logs
// are not exported.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logs
}

// Health returns the current status. A nil Telemetry is degraded.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.health
}

// Enabled reports whether telemetry was turned on and has not shut down.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.config.Enabled && t.Health().Healthy
}

// ForceFlush exports everything pending.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tp != nil {
		errs = append(errs, wrap("flushing traces", t.tp.ForceFlush(ctx)))
	}
	if t.mp != nil {
		errs = append(errs, wrap("flushing metrics", t.mp.ForceFlush(ctx)))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers. Without a deadline on ctx it
// waits at most ShutdownWait.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownWait.Duration())
		defer cancel()
	}

	var errs []error
	if t.tp != nil {
		errs = append(errs, wrap("stopping tracer provider", t.tp.Shutdown(ctx)))
	}
	if t.mp != nil {
		errs = append(errs, wrap("stopping meter provider", t.mp.Shutdown(ctx)))
	}

	t.mu.Lock()
	t.health.Healthy = false
	t.mu.Unlock()
	return errors.Join(errs...)
}

func (t *Telemetry) degrade(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health.Degraded = true
	t.health.LastError = err.Error()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
