package workflows

import (
	"context"
	"slices"
	"time"

	"github.com/fyrsmithlabs/cigen/internal/config"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

// PipelineEvaluator runs the orchestrator for one repository at a time.
type PipelineEvaluator struct {
	Deps         orchestrator.Deps
	Options      []orchestrator.Option
	Pipeline     config.PipelineConfig
	SystemPrompt string

	// Forget drops caches keyed by a released working copy. May be nil.
	Forget func(localPath string)
}

var _ Evaluator = (*PipelineEvaluator)(nil)

// Evaluate implements Evaluator. A partial result accompanies any error
// returned after the run started.
func (p *PipelineEvaluator) Evaluate(ctx context.Context, in RepoRunInput, progress func(step string)) (RepoRunResult, error) {
	opts := slices.Clone(p.Options)
	if progress != nil {
		opts = append(opts, orchestrator.WithProgress(func(pr orchestrator.Progress) {
			if pr.Status == orchestrator.ProgressStarted {
				progress(string(pr.Node))
			}
		}))
	}
	o, err := orchestrator.New(p.Deps, opts...)
	if err != nil {
		return RepoRunResult{}, err
	}

	rc := orchestrator.RunConfigFrom(p.Pipeline, in.RepoURL, in.Model)
	rc.SystemPrompt = p.SystemPrompt

	start := time.Now()
	final, err := o.Evaluate(ctx, rc)
	if p.Forget != nil && final.LocalPath != "" {
		p.Forget(final.LocalPath)
	}
	if final.RunID == "" {
		return RepoRunResult{}, err
	}
	return resultFromState(final, time.Since(start)), err
}

func resultFromState(s orchestrator.State, d time.Duration) RepoRunResult {
	tokens := 0
	for _, a := range s.GenerationAttempts {
		tokens += a.TokensUsed
	}
	return RepoRunResult{
		RepoURL:        s.RepoURL,
		RunID:          s.RunID,
		FinalStatus:    s.FinalStatus,
		FinishedEarly:  s.FinishEarly,
		LoopCount:      s.LoopCount,
		Steps:          len(s.NodeHistory),
		TokensUsed:     tokens,
		PullRequestURL: s.MergeRequestURL,
		Duration:       d,
		Errors:         slices.Clone(s.Errors),
	}
}
