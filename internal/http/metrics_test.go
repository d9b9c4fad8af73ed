package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/cigen/internal/telemetry"
)

func TestRequestMetrics_Middleware(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	m := NewRequestMetrics(tel.Meter(InstrumentationName), nil)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/batches/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "batch not found")
	})

	for _, path := range []string{"/health", "/health", "/api/v1/batches/cigen-batch-1", "/nope"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	ctx := context.Background()
	assert.Equal(t, int64(4), tel.Int64Sum(ctx, "cigen.http.requests"))
	assert.Equal(t, int64(2), tel.Int64Sum(ctx, "cigen.http.requests",
		attribute.String("route", "/health"), attribute.String("status", "200")))
	assert.Equal(t, int64(1), tel.Int64Sum(ctx, "cigen.http.requests",
		attribute.String("route", "/api/v1/batches/:id"), attribute.String("status", "404")),
		"route pattern is used, not the workflow id")
	assert.Zero(t, tel.Int64Sum(ctx, "cigen.http.requests.in_flight"))
}

func TestRequestMetrics_ErrorResponseIsWrittenOnce(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	e := echo.New()
	e.Use(NewRequestMetrics(tel.Meter(InstrumentationName), nil).Middleware())
	e.POST("/api/v1/redact", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/redact", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"content is required"}`, rec.Body.String())
}
