package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/config"
	"github.com/fyrsmithlabs/cigen/internal/generation"
	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
	"github.com/fyrsmithlabs/cigen/internal/repository"
	"github.com/fyrsmithlabs/cigen/internal/retrieval"
	"github.com/fyrsmithlabs/cigen/internal/telemetry"
	"github.com/fyrsmithlabs/cigen/internal/validation"
	"github.com/fyrsmithlabs/cigen/internal/workflows"
	"github.com/fyrsmithlabs/cigen/pkg/embeddings"
)

// app holds the process-wide collaborators shared by every command.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// newApp loads configuration and starts logging and telemetry.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	if err := logCfg.ParseLevel(logLevel); err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	logger.Debug(ctx, "configuration loaded",
		zap.String("llm.provider", cfg.LLM.Provider),
		zap.String("llm.model", cfg.LLM.Model),
		logging.Secret("github.token", cfg.GitHub.Token),
		logging.Secret("llm.api_key", cfg.LLM.APIKey),
	)
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("error", h.LastError))
	}
	return &app{cfg: cfg, logger: logger, telemetry: tel}, nil
}

// close flushes logs and telemetry.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// evaluator wires the pipeline services from configuration.
func (a *app) evaluator(ctx context.Context) (*workflows.PipelineEvaluator, error) {
	cfg := a.cfg

	repo, err := repository.New(ctx, cfg.GitHub, cfg.Git,
		repository.WithLogger(a.logger.Named("repository")),
	)
	if err != nil {
		return nil, fmt.Errorf("creating repository service: %w", err)
	}

	model, err := generation.NewModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	gen, err := generation.New(model,
		generation.WithTemperature(cfg.LLM.Temperature),
		generation.WithMaxTokens(cfg.LLM.MaxTokens),
		generation.WithLogger(a.logger.Named("generation")),
	)
	if err != nil {
		return nil, fmt.Errorf("creating generation service: %w", err)
	}

	checks := validation.New(cfg.Validation, validation.WithLogger(a.logger.Named("validation")))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger.Named("orchestrator")),
		orchestrator.WithMeter(a.telemetry.Meter(orchestrator.InstrumentationName)),
		orchestrator.WithTracer(a.telemetry.Tracer(orchestrator.InstrumentationName)),
		orchestrator.WithPolling(cfg.Pipeline.PollInterval.Duration(), cfg.Pipeline.PollAttempts),
	}
	if cfg.LLM.ClassifyFailures {
		opts = append(opts, orchestrator.WithClassifier(
			generation.NewModelClassifier(model, nil, a.logger.Named("classifier")),
		))
	}

	ev := &workflows.PipelineEvaluator{
		Deps: orchestrator.Deps{
			Repository: repo,
			Generation: gen,
			Validation: checks,
		},
		Options:      opts,
		Pipeline:     cfg.Pipeline,
		SystemPrompt: generation.SystemPrompt,
	}

	if cfg.Pipeline.Options.UseRetrieval {
		embedder, err := embeddings.NewService(embeddings.FromRetrieval(cfg.Retrieval))
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		index, err := retrieval.New(embedder,
			retrieval.WithResults(cfg.Retrieval.Results),
			retrieval.WithLogger(a.logger.Named("retrieval")),
		)
		if err != nil {
			return nil, fmt.Errorf("creating retrieval index: %w", err)
		}
		ev.Deps.Retrieval = index
		ev.Forget = index.Forget
	}
	return ev, nil
}
