package workflows

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/cigen/internal/logging"
)

// RunLocal evaluates a batch in-process without a Temporal server. It follows
// the same error policy as BatchEvaluationWorkflow and only returns an error
// for an invalid configuration or a cancelled context.
func RunLocal(ctx context.Context, ev Evaluator, cfg BatchConfig, logger *logging.Logger) (*BatchResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewWorkflowError("validate batch config", ErrorSeverityCritical, err, "")
	}

	result := &BatchResult{StatusCounts: make(map[string]int)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.window())
	for _, repo := range cfg.Repos {
		g.Go(func() error {
			in := RepoRunInput{RepoURL: repo, Model: cfg.Model}
			r, err := ev.Evaluate(gctx, in, func(step string) {
				logger.Debug(gctx, "pipeline step", zap.String("repo_url", repo), zap.String("step", step))
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				werr := NewWorkflowError("evaluate repository", ErrorSeverityHigh, err, repo)
				result.Errors = append(result.Errors, FormatErrorForResult(werr.Operation, werr))
				r = RepoRunResult{
					RepoURL:       repo,
					FinalStatus:   StatusActivityError,
					FinishedEarly: true,
					Errors:        []string{err.Error()},
				}
			} else if r.RepoURL == "" {
				r.RepoURL = repo
			}
			result.Add(r)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result.Sort()

	if cfg.SummaryPath != "" {
		if err := WriteSummary(cfg.SummaryPath, *result); err != nil {
			logger.Warn(ctx, "failed to write batch summary",
				zap.String("path", cfg.SummaryPath),
				zap.Error(err),
			)
		} else {
			result.SummaryPath = cfg.SummaryPath
		}
	}
	return result, nil
}
