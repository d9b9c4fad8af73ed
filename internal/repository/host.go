package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

// maxLogBytes bounds a single job log download.
const maxLogBytes = 4 * 1024 * 1024

// GetInfo returns repository metadata from the GitHub API.
func (s *Service) GetInfo(ctx context.Context, repoURL string) (orchestrator.RepoInfo, error) {
	owner, name, err := parseRepoURL(repoURL)
	if err != nil {
		return orchestrator.RepoInfo{}, err
	}

	var repo *github.Repository
	_, err = s.call(ctx, "get repository", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = s.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return orchestrator.RepoInfo{}, fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}

	return orchestrator.RepoInfo{
		Owner:         owner,
		Name:          name,
		DefaultBranch: repo.GetDefaultBranch(),
		Language:      repo.GetLanguage(),
		Description:   repo.GetDescription(),
		Topics:        repo.Topics,
		Stars:         repo.GetStargazersCount(),
		HTMLURL:       repo.GetHTMLURL(),
	}, nil
}

// GetRunResult returns the newest Actions run for commitID. It returns
// orchestrator.ErrNoRun until GitHub has registered a run.
func (s *Service) GetRunResult(ctx context.Context, repoURL, commitID string) (orchestrator.RunResult, error) {
	owner, name, err := parseRepoURL(repoURL)
	if err != nil {
		return orchestrator.RunResult{}, err
	}

	var runs *github.WorkflowRuns
	_, err = s.call(ctx, "list workflow runs", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		runs, resp, err = s.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, &github.ListWorkflowRunsOptions{
			HeadSHA:     commitID,
			ListOptions: github.ListOptions{PerPage: 10},
		})
		return resp, err
	})
	if err != nil {
		return orchestrator.RunResult{}, fmt.Errorf("list workflow runs: %w", err)
	}
	if runs == nil || len(runs.WorkflowRuns) == 0 {
		return orchestrator.RunResult{}, orchestrator.ErrNoRun
	}

	// Runs are listed newest first.
	run := runs.WorkflowRuns[0]
	result := orchestrator.RunResult{
		State:      orchestrator.RunState(run.GetStatus()),
		Conclusion: run.GetConclusion(),
		URL:        run.GetHTMLURL(),
	}
	if !result.Completed() || result.Succeeded() {
		return result, nil
	}

	detail, err := s.failureDetail(ctx, owner, name, run.GetID())
	if err != nil {
		// The conclusion alone still lets the run be classified.
		s.logger.Warn(ctx, "failed to collect job logs",
			zap.Int64("run_id", run.GetID()),
			zap.Error(err),
		)
	}
	result.FailureDetail = detail
	return result, nil
}

// failureDetail renders each failed job with its failed steps and the tail
// of its log.
func (s *Service) failureDetail(ctx context.Context, owner, name string, runID int64) (string, error) {
	var jobs *github.Jobs
	_, err := s.call(ctx, "list workflow jobs", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		jobs, resp, err = s.gh.Actions.ListWorkflowJobs(ctx, owner, name, runID, &github.ListWorkflowJobsOptions{
			Filter:      "latest",
			ListOptions: github.ListOptions{PerPage: 50},
		})
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("list workflow jobs: %w", err)
	}

	var b strings.Builder
	var errs []error
	for _, job := range jobs.Jobs {
		switch job.GetConclusion() {
		case "failure", "timed_out", "cancelled", "startup_failure":
		default:
			continue
		}

		fmt.Fprintf(&b, "Job %q: %s\n", job.GetName(), job.GetConclusion())
		for _, step := range job.Steps {
			if step.GetConclusion() == "failure" {
				fmt.Fprintf(&b, "Failed step %d: %s\n", step.GetNumber(), step.GetName())
			}
		}

		log, err := s.jobLog(ctx, owner, name, job.GetID())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.WriteString(tail(log, s.logLines))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), errors.Join(errs...)
}

func (s *Service) jobLog(ctx context.Context, owner, name string, jobID int64) (string, error) {
	var loc string
	_, err := s.call(ctx, "get job logs", func() (*github.Response, error) {
		u, resp, err := s.gh.Actions.GetWorkflowJobLogs(ctx, owner, name, jobID, 2)
		if u != nil {
			loc = u.String()
		}
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("job %d logs: %w", jobID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download job %d logs: %w", jobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download job %d logs: status %d", jobID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogBytes))
	if err != nil {
		return "", fmt.Errorf("read job %d logs: %w", jobID, err)
	}
	return string(body), nil
}

// tail keeps the last n lines of text.
func tail(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// OpenMergeRequest opens a pull request and returns its URL.
func (s *Service) OpenMergeRequest(ctx context.Context, repoURL string, req orchestrator.MergeRequest) (string, error) {
	owner, name, err := parseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	var pr *github.PullRequest
	_, err = s.call(ctx, "create pull request", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = s.gh.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
			Title: github.String(req.Title),
			Head:  github.String(req.Head),
			Base:  github.String(req.Base),
			Body:  github.String(req.Body),
		})
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("create pull request %s -> %s: %w", req.Head, req.Base, err)
	}
	return pr.GetHTMLURL(), nil
}
