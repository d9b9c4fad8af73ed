package orchestrator

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/cigen/internal/conversation"
)

var (
	// ErrStepLimit is returned when a run exceeds its node execution bound.
	ErrStepLimit = errors.New("orchestrator: step limit exceeded")

	// ErrInvalidSource is returned when Generate follows an unexpected node.
	ErrInvalidSource = errors.New("orchestrator: invalid generate source")

	// ErrNoRun is returned by RepositoryService.GetRunResult while no CI run
	// exists for the commit yet. Execute keeps polling.
	ErrNoRun = errors.New("orchestrator: no workflow run for commit")
)

// RunState is the lifecycle status of a CI run.
type RunState string

const (
	RunQueued     RunState = "queued"
	RunInProgress RunState = "in_progress"
	RunPending    RunState = "pending"
	RunWaiting    RunState = "waiting"
	RunRequested  RunState = "requested"
	RunCompleted  RunState = "completed"
)

// RunResult is a snapshot of the CI run triggered by a commit.
type RunResult struct {
	State      RunState
	Conclusion string // success, failure, cancelled, timed_out, startup_failure, ...
	// FailureDetail holds failing job and step logs, empty on success.
	FailureDetail string
	URL           string
}

// Completed reports whether the run has a conclusion.
func (r RunResult) Completed() bool {
	return r.State == RunCompleted
}

// Succeeded reports whether a completed run passed.
func (r RunResult) Succeeded() bool {
	return r.Completed() && (r.Conclusion == "success" || r.Conclusion == "neutral")
}

// MergeRequest describes the pull request opened at the end of a run.
type MergeRequest struct {
	Head  string
	Base  string
	Title string
	Body  string
}

// RepositoryService covers the Git host and the local working copy.
type RepositoryService interface {
	GetInfo(ctx context.Context, repoURL string) (RepoInfo, error)
	Clone(ctx context.Context, repoURL string) (localPath string, err error)
	CreateBranch(ctx context.Context, localPath, branch string) error
	Exists(ctx context.Context, localPath, relPath string) (bool, error)
	DeleteFolder(ctx context.Context, localPath, relPath string) error
	ListFiles(ctx context.Context, localPath string) ([]string, error)
	ReadFile(ctx context.Context, localPath, relPath string) (string, error)
	// WriteFile creates parent directories and overwrites existing content.
	WriteFile(ctx context.Context, localPath, relPath, content string) error
	// CommitAndPush stages all changes, commits and pushes the current branch.
	CommitAndPush(ctx context.Context, localPath, message string) (commitID string, err error)
	GetRunResult(ctx context.Context, repoURL, commitID string) (RunResult, error)
	OpenMergeRequest(ctx context.Context, repoURL string, req MergeRequest) (url string, err error)
	DeleteLocalClone(ctx context.Context, localPath string) error
}

// GenerationRequest carries everything the model sees for one Generate call.
type GenerationRequest struct {
	Source        GenerateSource
	ArtifactName  string
	Repo          RepoInfo
	Language      string
	FileTree      []string
	RequiredFiles []RequiredFile
	Guidance      string
	BuildGuide    string
	Transcript    conversation.Transcript

	// Set for revisions only.
	PriorArtifact string
	FailureDetail string
}

// GenerationResult is the model's answer to a GenerationRequest.
type GenerationResult struct {
	Status     GenStatus
	Text       string
	TokensUsed int
	// Instruction is the rendered prompt, recorded in the transcript.
	Instruction string
}

// FileSelectionRequest asks the model to pick files relevant to CI.
type FileSelectionRequest struct {
	Repo     RepoInfo
	Language string
	FileTree []string
	Max      int
}

// ExplanationRequest asks the model to describe the final artifact.
type ExplanationRequest struct {
	ArtifactName string
	Artifact     string
	Repo         RepoInfo
	Outcome      string

	ValidationErrors []string
	ProjectErrors    []string
	ToolErrors       []string
	UnknownErrors    []string
}

// GenerationService wraps the generative model.
type GenerationService interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
	SelectFiles(ctx context.Context, req FileSelectionRequest) ([]RequiredFile, error)
	// Summarize returns a reduced rendering of a required file.
	Summarize(ctx context.Context, file RequiredFile) (string, error)
	BestPractices(ctx context.Context, language string, count int) (string, error)
	Explain(ctx context.Context, req ExplanationRequest) (string, error)
}

// CheckOutput is what a static check reports.
type CheckOutput struct {
	Status    CheckStatus
	RawOutput string
}

// ValidationService runs named static checks against a working copy.
type ValidationService interface {
	RunCheck(ctx context.Context, name, localPath string) (CheckOutput, error)
}

// RetrievalService answers free-text questions about a working copy.
type RetrievalService interface {
	Lookup(ctx context.Context, localPath, query string) (string, error)
}
