package workflows

import (
	"context"
	"errors"
	"sync"
)

// fakeEvaluator returns canned results keyed by repository URL.
type fakeEvaluator struct {
	mu      sync.Mutex
	results map[string]RepoRunResult
	fail    map[string]error
	steps   []string
	seen    []string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, in RepoRunInput, progress func(step string)) (RepoRunResult, error) {
	if progress != nil {
		progress("parse")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, in.RepoURL)
	f.steps = append(f.steps, "parse")
	if err := ctx.Err(); err != nil {
		return RepoRunResult{}, err
	}
	if err, ok := f.fail[in.RepoURL]; ok {
		return RepoRunResult{}, err
	}
	if r, ok := f.results[in.RepoURL]; ok {
		return r, nil
	}
	return RepoRunResult{}, errors.New("fake: unknown repository")
}
