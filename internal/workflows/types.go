// Package workflows evaluates CI generation across many repositories as a
// durable Temporal workflow.
//
// BatchEvaluationWorkflow fans repositories out to EvaluateRepositoryActivity
// in windows of BatchConfig.Concurrency, collects one RepoRunResult per
// repository and optionally writes a JSON summary. The same result types are
// used by the local batch runner in cmd/cigen.
package workflows

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// TaskQueue is the default Temporal task queue for evaluation workers.
const TaskQueue = "cigen-evaluation"

// BatchConfig configures BatchEvaluationWorkflow.
type BatchConfig struct {
	Repos       []string // repository URLs
	Model       string   // model label recorded in branch names
	Concurrency int      // repositories evaluated at once; 0 means 4
	SummaryPath string   // optional JSON summary written by the worker
}

// Validate checks that the batch can run.
func (c *BatchConfig) Validate() error {
	if len(c.Repos) == 0 {
		return errors.New("Repos must not be empty")
	}
	seen := make(map[string]bool, len(c.Repos))
	for _, r := range c.Repos {
		if r == "" {
			return errors.New("Repos must not contain empty URLs")
		}
		if seen[r] {
			return fmt.Errorf("repository %s listed twice", r)
		}
		seen[r] = true
	}
	if c.Model == "" {
		return errors.New("Model is required")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("Concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}

func (c *BatchConfig) window() int {
	if c.Concurrency == 0 {
		return 4
	}
	return c.Concurrency
}

// RepoRunInput is the input of EvaluateRepositoryActivity.
type RepoRunInput struct {
	RepoURL string
	Model   string
}

// RepoRunResult summarizes one orchestrator run.
type RepoRunResult struct {
	RepoURL        string        `json:"repo_url"`
	RunID          string        `json:"run_id"`
	FinalStatus    string        `json:"final_status"`
	FinishedEarly  bool          `json:"finished_early"`
	LoopCount      int           `json:"loop_count"`
	Steps          int           `json:"steps"`
	TokensUsed     int           `json:"tokens_used"`
	PullRequestURL string        `json:"pull_request_url,omitempty"`
	Duration       time.Duration `json:"duration"`
	Errors         []string      `json:"errors,omitempty"`
}

// Succeeded reports whether the generated workflow passed.
func (r RepoRunResult) Succeeded() bool {
	return r.FinalStatus == "success"
}

// BatchResult aggregates a batch.
type BatchResult struct {
	Results      []RepoRunResult `json:"results"`
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	StatusCounts map[string]int  `json:"status_counts"`
	SummaryPath  string          `json:"summary_path,omitempty"`
	Errors       []string        `json:"errors,omitempty"`
}

// Add records one repository result.
func (b *BatchResult) Add(r RepoRunResult) {
	if b.StatusCounts == nil {
		b.StatusCounts = make(map[string]int)
	}
	b.Results = append(b.Results, r)
	b.StatusCounts[r.FinalStatus]++
	if r.Succeeded() {
		b.Succeeded++
	} else {
		b.Failed++
	}
}

// Sort orders results by repository URL.
func (b *BatchResult) Sort() {
	sort.Slice(b.Results, func(i, j int) bool { return b.Results[i].RepoURL < b.Results[j].RepoURL })
}

// SummaryInput is the input of WriteSummaryActivity.
type SummaryInput struct {
	Path   string
	Result BatchResult
}
