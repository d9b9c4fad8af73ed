package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/logging"
)

// StatusActivityError is the FinalStatus recorded for a repository whose
// evaluation never produced a result.
const StatusActivityError = "activity_error"

// Evaluator runs the CI generation pipeline for one repository. progress is
// called at every pipeline step and may be nil.
type Evaluator interface {
	Evaluate(ctx context.Context, in RepoRunInput, progress func(step string)) (RepoRunResult, error)
}

// Activities holds the dependencies of the batch activities. Register a
// pointer with the worker.
type Activities struct {
	Evaluator Evaluator
	Logger    *logging.Logger
}

func (a *Activities) logger() *logging.Logger {
	if a.Logger == nil {
		return logging.NewNop()
	}
	return a.Logger
}

// EvaluateRepositoryActivity evaluates one repository, heartbeating the
// current pipeline step.
func (a *Activities) EvaluateRepositoryActivity(ctx context.Context, in RepoRunInput) (RepoRunResult, error) {
	if a.Evaluator == nil {
		return RepoRunResult{}, errors.New("activities: evaluator is not configured")
	}

	runsInFlight.Inc()
	defer runsInFlight.Dec()

	start := time.Now()
	res, err := a.Evaluator.Evaluate(ctx, in, func(step string) {
		activity.RecordHeartbeat(ctx, step)
	})
	recordActivity(ctx, "evaluate_repository", start, err)
	if err != nil {
		runsTotal.WithLabelValues(StatusActivityError).Inc()
		a.logger().Error(ctx, "repository evaluation failed",
			zap.String("repo_url", in.RepoURL),
			zap.Error(err),
		)
		return RepoRunResult{}, fmt.Errorf("evaluating %s: %w", in.RepoURL, err)
	}

	if res.RepoURL == "" {
		res.RepoURL = in.RepoURL
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	runsTotal.WithLabelValues(res.FinalStatus).Inc()
	repoEvaluationCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", res.FinalStatus),
	))
	a.logger().Info(ctx, "repository evaluated",
		zap.String("repo_url", res.RepoURL),
		zap.String("final_status", res.FinalStatus),
		zap.Int("loop_count", res.LoopCount),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// WriteSummaryActivity writes the batch result as indented JSON.
func (a *Activities) WriteSummaryActivity(ctx context.Context, in SummaryInput) error {
	start := time.Now()
	err := WriteSummary(in.Path, in.Result)
	recordActivity(ctx, "write_summary", start, err)
	return err
}

// WriteSummary writes result to path, creating parent directories.
func WriteSummary(path string, result BatchResult) error {
	if path == "" {
		return errors.New("summary path is empty")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating summary directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

func recordActivity(ctx context.Context, name string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("activity", name))
	activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		activityErrorCounter.Add(ctx, 1, attrs)
	}
}
