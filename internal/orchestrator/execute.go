package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type executeNode struct {
	repo         RepositoryService
	classifier   Classifier
	pollInterval time.Duration
	pollAttempts int
	sleep        Sleeper
	now          func() time.Time
}

func (n *executeNode) Tag() NodeTag { return NodeExecute }

// Run pushes the artifact and observes the CI run it triggers. Exactly one
// ExecutionResult is appended per call.
func (n *executeNode) Run(ctx context.Context, s State) (Update, error) {
	u := visit(NodeExecute)

	// Pushing the same text again cannot produce a different outcome.
	if s.LastCommitID != "" && s.Artifact == s.LastCommitted {
		u.ExecutionResults = []ExecutionResult{{Status: ExecAborted, CommitID: s.LastCommitID}}
		return abort(u, StatusStalled, fmt.Errorf("artifact identical to commit %s", shortID(s.LastCommitID))), nil
	}

	msg := fmt.Sprintf("cigen: update %s (%s)", s.ArtifactPath(), n.now().UTC().Format(time.RFC3339))
	commitID, err := n.repo.CommitAndPush(ctx, s.LocalPath, msg)
	if err != nil {
		if ctx.Err() != nil {
			return Update{}, ctx.Err()
		}
		u.ExecutionResults = []ExecutionResult{{Status: ExecAborted}}
		return abort(u, StatusPushFailed, err), nil
	}
	u.LastCommitted = ptr(s.Artifact)
	u.LastCommitID = ptr(commitID)

	if !s.Options.Execute {
		u.ExecutionResults = []ExecutionResult{{Status: ExecSkipped, CommitID: commitID}}
		return u, nil
	}

	run, status, err := n.poll(ctx, s.RepoURL, commitID)
	if err != nil {
		if status == "" {
			return Update{}, err
		}
		u.ExecutionResults = []ExecutionResult{{Status: ExecAborted, CommitID: commitID, RunURL: run.URL}}
		return abort(u, status, err), nil
	}

	result := ExecutionResult{
		CommitID:   commitID,
		Conclusion: run.Conclusion,
		RunURL:     run.URL,
	}
	if run.Succeeded() {
		result.Status = ExecSuccess
	} else {
		result.Status = ExecFailure
		result.RawFailure = run.FailureDetail
		c := n.classifier.Classify(ctx, s.Artifact, Detail{
			Source:     SourceExecution,
			Conclusion: run.Conclusion,
			Output:     run.FailureDetail,
		})
		result.Classification = &c
	}
	u.ExecutionResults = []ExecutionResult{result}
	return u, nil
}

// poll waits for the run triggered by commitID to complete. A non-empty
// status means the run must abort with it; an error with an empty status is
// a cancellation.
func (n *executeNode) poll(ctx context.Context, repoURL, commitID string) (RunResult, string, error) {
	var last RunResult
	for attempt := 1; attempt <= n.pollAttempts; attempt++ {
		if err := n.sleep(ctx, n.pollInterval); err != nil {
			return last, "", err
		}

		run, err := n.repo.GetRunResult(ctx, repoURL, commitID)
		switch {
		case errors.Is(err, ErrNoRun):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return last, "", ctx.Err()
			}
			return last, StatusRunLookupFailed, err
		}
		last = run
		if run.Completed() {
			return run, "", nil
		}
	}
	return last, StatusPollExhausted, fmt.Errorf("run for commit %s not completed after %d attempts", shortID(commitID), n.pollAttempts)
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
