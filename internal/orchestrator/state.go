package orchestrator

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/cigen/internal/config"
	"github.com/fyrsmithlabs/cigen/internal/conversation"
)

// WorkflowsDir is the repository directory holding CI workflow files.
const WorkflowsDir = ".github/workflows"

// Check names in the order Validate runs them.
var CheckOrder = []string{"yaml", "actionlint", "ghalint", "secrets"}

// Options toggles pipeline stages and sub-steps.
type Options struct {
	Generate bool
	Validate bool
	Execute  bool
	Explain  bool

	// Checks enables individual static checks by name.
	Checks map[string]bool

	SelectRequiredFiles bool
	ReduceRequiredFiles bool
	UseRetrieval        bool
	BestPractices       bool
	BestPracticeCount   int
}

// DefaultOptions enables every stage and check.
func DefaultOptions() Options {
	checks := make(map[string]bool, len(CheckOrder))
	for _, name := range CheckOrder {
		checks[name] = true
	}
	return Options{
		Generate:            true,
		Validate:            true,
		Execute:             true,
		Explain:             true,
		Checks:              checks,
		SelectRequiredFiles: true,
		ReduceRequiredFiles: true,
		BestPractices:       true,
		BestPracticeCount:   10,
	}
}

// EnabledChecks returns the enabled check names in run order.
func (o Options) EnabledChecks() []string {
	var out []string
	for _, name := range CheckOrder {
		if o.Checks[name] {
			out = append(out, name)
		}
	}
	return out
}

// RunConfig fixes the identity of a run.
type RunConfig struct {
	RepoURL string
	// Model names the generation model; it seeds the default branch name.
	Model            string
	BranchPrefix     string
	WorkBranch       string
	ArtifactName     string
	LoopMax          int
	ValidateLoopMax  int
	MaxRequiredFiles int
	TranscriptBudget int
	SystemPrompt     string
	Options          Options
}

// RunConfigFrom builds a RunConfig for repoURL from pipeline configuration.
func RunConfigFrom(p config.PipelineConfig, repoURL, model string) RunConfig {
	validateMax := p.ValidateLoopMax
	if validateMax <= 0 || validateMax > p.LoopMax {
		validateMax = p.LoopMax
	}
	checks := make(map[string]bool, len(p.Options.Checks))
	for _, name := range p.Options.Checks {
		checks[name] = true
	}
	return RunConfig{
		RepoURL:          repoURL,
		Model:            model,
		BranchPrefix:     p.BranchPrefix,
		ArtifactName:     p.ArtifactName,
		LoopMax:          p.LoopMax,
		ValidateLoopMax:  validateMax,
		MaxRequiredFiles: p.MaxRequiredFiles,
		TranscriptBudget: p.TranscriptBudget,
		Options: Options{
			Generate:            p.Options.Generate,
			Validate:            p.Options.Validate,
			Execute:             p.Options.Execute,
			Explain:             p.Options.Explain,
			Checks:              checks,
			SelectRequiredFiles: p.Options.SelectRequiredFiles,
			ReduceRequiredFiles: p.Options.ReduceRequiredFiles,
			UseRetrieval:        p.Options.UseRetrieval,
			BestPractices:       p.Options.BestPractices,
			BestPracticeCount:   p.Options.BestPracticeCount,
		},
	}
}

// State is the record threaded through one evaluation of one repository.
// It is only changed through Apply.
type State struct {
	// Identity, fixed by NewState.
	RunID            string
	RepoURL          string
	WorkBranch       string
	ArtifactName     string
	LoopMax          int
	ValidateLoopMax  int
	MaxRequiredFiles int
	Options          Options

	// Progress.
	LoopCount   int
	PrevNode    NodeTag
	NodeHistory []NodeTag

	// Append-only logs.
	GenerationAttempts []GenerationAttempt
	ValidationResults  []ValidationResult
	ExecutionResults   []ExecutionResult
	NodeTimings        []NodeTiming
	Errors             []string

	// Context populated by Parse.
	LocalPath     string
	Repo          RepoInfo
	Language      string
	FileTree      []string
	RequiredFiles []RequiredFile
	BuildGuide    string
	Guidance      string

	// Artifact is the text of the most recently generated artifact.
	Artifact      string
	LastCommitted string
	LastCommitID  string

	Explanation     string
	MergeRequestURL string

	FinishEarly bool
	FinalStatus string

	Transcript conversation.Transcript
}

// NewState validates cfg and returns a fresh run state.
func NewState(cfg RunConfig) (State, error) {
	if strings.TrimSpace(cfg.RepoURL) == "" {
		return State{}, errors.New("repository url is required")
	}

	loopMax := cfg.LoopMax
	if loopMax == 0 {
		loopMax = 5
	}
	if loopMax < 1 {
		return State{}, fmt.Errorf("loop max must be >= 1, got %d", cfg.LoopMax)
	}
	validateMax := cfg.ValidateLoopMax
	if validateMax <= 0 || validateMax > loopMax {
		validateMax = loopMax
	}
	maxFiles := cfg.MaxRequiredFiles
	if maxFiles == 0 {
		maxFiles = 5
	}
	if maxFiles < 0 {
		return State{}, fmt.Errorf("max required files must be >= 0, got %d", cfg.MaxRequiredFiles)
	}

	artifact := cfg.ArtifactName
	if artifact == "" {
		artifact = "ci.yml"
	}
	if strings.ContainsAny(artifact, `/\`) {
		return State{}, fmt.Errorf("artifact name must be a bare file name, got %q", artifact)
	}

	runID := uuid.NewString()
	branch := cfg.WorkBranch
	if branch == "" {
		branch = DefaultWorkBranch(cfg.BranchPrefix, cfg.Model, runID)
	}

	opts := cfg.Options
	if opts.Checks == nil {
		opts.Checks = map[string]bool{}
	}

	return State{
		RunID:            runID,
		RepoURL:          cfg.RepoURL,
		WorkBranch:       branch,
		ArtifactName:     artifact,
		LoopMax:          loopMax,
		ValidateLoopMax:  validateMax,
		MaxRequiredFiles: maxFiles,
		Options:          opts,
		Transcript:       conversation.New(cfg.SystemPrompt, cfg.TranscriptBudget),
	}, nil
}

// DefaultWorkBranch builds "<prefix>/<model>", falling back to the run ID
// when no model is named.
func DefaultWorkBranch(prefix, model, runID string) string {
	if prefix == "" {
		prefix = "cigen"
	}
	name := sanitizeRef(model)
	if name == "" {
		name = runID
		if len(name) > 8 {
			name = name[:8]
		}
	}
	return prefix + "/" + name
}

// sanitizeRef replaces characters git refuses in ref names.
func sanitizeRef(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r <= ' ', r == 0x7f:
			return '-'
		case strings.ContainsRune(`~^:?*[\`, r):
			return '-'
		}
		return r
	}, strings.ReplaceAll(s, "..", "-"))
}

// ArtifactPath is the artifact location relative to the repository root.
func (s State) ArtifactPath() string {
	return path.Join(WorkflowsDir, s.ArtifactName)
}

// LatestValidation returns the most recent Validate pass.
func (s State) LatestValidation() (ValidationResult, bool) {
	if len(s.ValidationResults) == 0 {
		return ValidationResult{}, false
	}
	return s.ValidationResults[len(s.ValidationResults)-1], true
}

// LatestExecution returns the most recent Execute outcome.
func (s State) LatestExecution() (ExecutionResult, bool) {
	if len(s.ExecutionResults) == 0 {
		return ExecutionResult{}, false
	}
	return s.ExecutionResults[len(s.ExecutionResults)-1], true
}

// StepLimit bounds the number of node executions for a run. Parse and
// Explain run once; each Generate is followed by Validate and at most one
// Execute.
func StepLimit(loopMax int) int {
	return max(2*loopMax+4, 3*loopMax+2)
}

// Update is the partial result of one node. Nil pointers and empty slices
// leave the corresponding State field unchanged.
type Update struct {
	PrevNode    *NodeTag
	NodeHistory []NodeTag
	LoopCount   *int

	GenerationAttempts []GenerationAttempt
	ValidationResults  []ValidationResult
	ExecutionResults   []ExecutionResult
	NodeTimings        []NodeTiming
	Errors             []string

	LocalPath     *string
	Repo          *RepoInfo
	Language      *string
	FileTree      *[]string
	RequiredFiles *[]RequiredFile
	BuildGuide    *string
	Guidance      *string

	Artifact      *string
	LastCommitted *string
	LastCommitID  *string

	Explanation     *string
	MergeRequestURL *string

	FinishEarly *bool
	FinalStatus *string

	Transcript *conversation.Transcript
}

// Apply merges u into s and returns the result. Scalars are last write
// wins, logs append, FileTree and RequiredFiles are replaced whole.
// FinishEarly never reverts and FinalStatus is written once. The returned
// state shares no slice that u still holds.
func (s State) Apply(u Update) State {
	next := s

	next.PrevNode = lastWrite(s.PrevNode, u.PrevNode)
	next.NodeHistory = appendOnly(s.NodeHistory, u.NodeHistory)
	next.LoopCount = lastWrite(s.LoopCount, u.LoopCount)

	next.GenerationAttempts = appendOnly(s.GenerationAttempts, u.GenerationAttempts)
	next.ValidationResults = appendOnly(s.ValidationResults, u.ValidationResults)
	next.ExecutionResults = appendOnly(s.ExecutionResults, u.ExecutionResults)
	next.NodeTimings = appendOnly(s.NodeTimings, u.NodeTimings)
	next.Errors = appendOnly(s.Errors, u.Errors)

	next.LocalPath = lastWrite(s.LocalPath, u.LocalPath)
	next.Repo = lastWrite(s.Repo, u.Repo)
	next.Language = lastWrite(s.Language, u.Language)
	next.FileTree = replaceList(s.FileTree, u.FileTree)
	next.RequiredFiles = replaceList(s.RequiredFiles, u.RequiredFiles)
	next.BuildGuide = lastWrite(s.BuildGuide, u.BuildGuide)
	next.Guidance = lastWrite(s.Guidance, u.Guidance)

	next.Artifact = lastWrite(s.Artifact, u.Artifact)
	next.LastCommitted = lastWrite(s.LastCommitted, u.LastCommitted)
	next.LastCommitID = lastWrite(s.LastCommitID, u.LastCommitID)

	next.Explanation = lastWrite(s.Explanation, u.Explanation)
	next.MergeRequestURL = lastWrite(s.MergeRequestURL, u.MergeRequestURL)

	next.FinishEarly = s.FinishEarly || lastWrite(false, u.FinishEarly)
	if s.FinalStatus == "" {
		next.FinalStatus = lastWrite(s.FinalStatus, u.FinalStatus)
	}

	next.Transcript = lastWrite(s.Transcript, u.Transcript)
	return next
}

func lastWrite[T any](cur T, update *T) T {
	if update == nil {
		return cur
	}
	return *update
}

func appendOnly[T any](cur, add []T) []T {
	if len(add) == 0 {
		return cur
	}
	out := make([]T, 0, len(cur)+len(add))
	out = append(out, cur...)
	return append(out, add...)
}

func replaceList[T any](cur []T, update *[]T) []T {
	if update == nil {
		return cur
	}
	out := make([]T, len(*update))
	copy(out, *update)
	return out
}

func ptr[T any](v T) *T {
	return &v
}
