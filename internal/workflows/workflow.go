package workflows

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Activity timeouts. A single evaluation may wait on several CI runs.
const (
	evaluateTimeout  = 3 * time.Hour
	heartbeatTimeout = 10 * time.Minute
	summaryTimeout   = time.Minute
)

// BatchEvaluationWorkflow evaluates every repository in cfg and aggregates
// the outcomes.
//
// Repositories are started in windows of cfg.Concurrency. A failed activity
// is recorded as a StatusActivityError result and the batch continues. An
// evaluation is never retried: a second attempt would open another branch
// and spend another round of model calls.
func BatchEvaluationWorkflow(ctx workflow.Context, cfg BatchConfig) (*BatchResult, error) {
	logger := workflow.GetLogger(ctx)
	result := &BatchResult{StatusCounts: make(map[string]int)}

	if err := cfg.Validate(); err != nil {
		werr := NewWorkflowError("validate batch config", ErrorSeverityCritical, err, "")
		result.Errors = append(result.Errors, FormatErrorForResult(werr.Operation, err))
		return result, temporal.NewNonRetryableApplicationError(werr.Error(), "InvalidBatchConfig", werr)
	}

	if !workflow.IsReplaying(ctx) {
		batchCounter.Add(context.Background(), 1)
	}
	logger.Info("Starting batch evaluation",
		"repos", len(cfg.Repos),
		"model", cfg.Model,
		"concurrency", cfg.window())

	evalCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: evaluateTimeout,
		HeartbeatTimeout:    heartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var a *Activities
	window := cfg.window()
	for start := 0; start < len(cfg.Repos); start += window {
		end := min(start+window, len(cfg.Repos))
		batch := cfg.Repos[start:end]

		futures := make([]workflow.Future, len(batch))
		for i, repo := range batch {
			futures[i] = workflow.ExecuteActivity(evalCtx, a.EvaluateRepositoryActivity, RepoRunInput{
				RepoURL: repo,
				Model:   cfg.Model,
			})
		}

		for i, f := range futures {
			var r RepoRunResult
			if err := f.Get(ctx, &r); err != nil {
				werr := NewWorkflowError("evaluate repository", ErrorSeverityHigh, err, batch[i])
				logger.Error("Repository evaluation failed", "repo", batch[i], "error", err)
				result.Errors = append(result.Errors, FormatErrorForResult(werr.Operation, werr))
				r = RepoRunResult{
					RepoURL:       batch[i],
					FinalStatus:   StatusActivityError,
					FinishedEarly: true,
					Errors:        []string{err.Error()},
				}
			}
			result.Add(r)
		}
	}
	result.Sort()

	if cfg.SummaryPath != "" {
		summaryCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: summaryTimeout,
			RetryPolicy: &temporal.RetryPolicy{
				MaximumAttempts: 3,
			},
		})
		err := workflow.ExecuteActivity(summaryCtx, a.WriteSummaryActivity, SummaryInput{
			Path:   cfg.SummaryPath,
			Result: *result,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("Failed to write batch summary", "path", cfg.SummaryPath, "error", err)
		} else {
			result.SummaryPath = cfg.SummaryPath
		}
	}

	logger.Info("Batch evaluation complete",
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}
