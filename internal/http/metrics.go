package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// InstrumentationName is the meter scope for request metrics.
const InstrumentationName = "github.com/fyrsmithlabs/cigen/internal/http"

// RequestMetrics records request count, latency and in-flight requests per
// route.
type RequestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewRequestMetrics creates the instruments on meter. An instrument that
// fails to register is logged and skipped.
func NewRequestMetrics(meter metric.Meter, logger *zap.Logger) *RequestMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to create http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &RequestMetrics{}
	var err error
	m.requests, err = meter.Int64Counter("cigen.http.requests",
		metric.WithDescription("HTTP requests by method, route and status code"),
		metric.WithUnit("{request}"),
	)
	warn("requests", err)
	m.latency, err = meter.Float64Histogram("cigen.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status code"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 1, 2.5, 10),
	)
	warn("request.duration", err)
	m.inFlight, err = meter.Int64UpDownCounter("cigen.http.requests.in_flight",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"),
	)
	warn("requests.in_flight", err)
	return m
}

// Middleware records every request under its registered route pattern, so
// path parameters such as workflow IDs never become label values.
func (m *RequestMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.String("status", strconv.Itoa(c.Response().Status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return nil
		}
	}
}
