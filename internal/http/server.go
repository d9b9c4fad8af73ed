// Package http provides the worker's HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/workflows"
	"github.com/fyrsmithlabs/cigen/pkg/secrets"
)

// Batches submits and inspects batch evaluations.
type Batches interface {
	Submit(ctx context.Context, cfg workflows.BatchConfig) (workflows.BatchRef, error)
	Status(ctx context.Context, workflowID string) (workflows.BatchStatus, error)
}

// Server provides HTTP endpoints for the cigen worker.
type Server struct {
	echo     *echo.Echo
	redactor *secrets.Redactor
	batches  Batches
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Option configures a Server.
type Option func(*Server)

// WithBatches enables the /api/v1/batches endpoints.
func WithBatches(b Batches) Option {
	return func(s *Server) { s.batches = b }
}

// WithGatherer sets the registry served on /metrics. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMetrics records OpenTelemetry request metrics through m.
func WithMetrics(m *RequestMetrics) Option {
	return func(s *Server) { s.echo.Use(m.Middleware()) }
}

// NewServer builds the server. A nil cfg listens on localhost:9090.
func NewServer(redactor *secrets.Redactor, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if redactor == nil {
		return nil, errors.New("redactor is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Warn("http request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("http request", fields...)
			return nil
		},
	}))

	s := &Server{
		echo:     e,
		redactor: redactor,
		gatherer: prometheus.DefaultGatherer,
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/redact", s.handleRedact)
	if s.batches != nil {
		v1.POST("/batches", s.handleSubmitBatch)
		v1.GET("/batches/:id", s.handleBatchStatus)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleRedact replaces secrets in the provided content with markers.
func (s *Server) handleRedact(c echo.Context) error {
	var req RedactRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid redact request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result, err := s.redactor.Redact(req.Content)
	if err != nil {
		s.logger.Error("redaction failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "redaction failed")
	}

	s.logger.Debug("redacted content",
		zap.Int("findings", result.Audit.Summary.TotalSecrets),
	)

	return c.JSON(http.StatusOK, RedactResponse{
		Content:       result.Content,
		FindingsCount: result.Audit.Summary.TotalSecrets,
	})
}

func (s *Server) handleSubmitBatch(c echo.Context) error {
	var req SubmitBatchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid batch request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cfg := req.BatchConfig()
	if err := cfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ref, err := s.batches.Submit(c.Request().Context(), cfg)
	if err != nil {
		s.logger.Error("batch submission failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "could not start batch")
	}

	s.logger.Info("batch submitted",
		zap.String("workflow_id", ref.WorkflowID),
		zap.Int("repos", len(cfg.Repos)),
	)
	return c.JSON(http.StatusAccepted, SubmitBatchResponse(ref))
}

func (s *Server) handleBatchStatus(c echo.Context) error {
	id := c.Param("id")
	status, err := s.batches.Status(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		s.logger.Warn("batch status lookup failed", zap.String("workflow_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusNotFound, "batch not found")
	}
	return c.JSON(http.StatusOK, BatchStatusResponse(status))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
