package orchestrator

import (
	"fmt"
	"time"
)

// NodeTag identifies a pipeline node.
type NodeTag string

const (
	NodeParse    NodeTag = "parse"
	NodeGenerate NodeTag = "generate"
	NodeValidate NodeTag = "validate"
	NodeExecute  NodeTag = "execute"
	NodeExplain  NodeTag = "explain"
)

// GenerateSource tells Generate which kind of request to build.
type GenerateSource int

const (
	// FromParse requests a fresh artifact from repository context.
	FromParse GenerateSource = iota + 1
	// FromValidate revises the prior artifact using static check findings.
	FromValidate
	// FromExecute revises the prior artifact using a retryable CI failure.
	FromExecute
)

func (g GenerateSource) String() string {
	switch g {
	case FromParse:
		return "from_parse"
	case FromValidate:
		return "from_validate"
	case FromExecute:
		return "from_execute"
	default:
		return fmt.Sprintf("GenerateSource(%d)", int(g))
	}
}

// SourceFor derives the Generate dispatch from the previously executed node.
func SourceFor(prev NodeTag) (GenerateSource, error) {
	switch prev {
	case NodeParse:
		return FromParse, nil
	case NodeValidate:
		return FromValidate, nil
	case NodeExecute:
		return FromExecute, nil
	default:
		return 0, fmt.Errorf("%w: generate cannot follow %q", ErrInvalidSource, prev)
	}
}

// Category classifies why a validation check or CI run failed.
type Category string

// Categories in priority order.
const (
	CategoryConfig  Category = "configError"
	CategoryProject Category = "projectError"
	CategoryTool    Category = "toolError"
	CategoryUnknown Category = "unknownError"
)

// Retryable reports whether regenerating the artifact can fix the failure.
func (c Category) Retryable() bool {
	return c == CategoryConfig
}

// Classification is the outcome of the failure classifier.
type Classification struct {
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
}

// CheckStatus is the outcome of one static check.
type CheckStatus string

const (
	CheckPassed    CheckStatus = "passed"
	CheckFailed    CheckStatus = "failed"
	CheckToolError CheckStatus = "tool-error"
)

// CheckResult records one static check run.
type CheckResult struct {
	Name           string          `json:"name"`
	Status         CheckStatus     `json:"status"`
	RawOutput      string          `json:"raw_output,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// ValidationResult records one Validate pass.
type ValidationResult struct {
	Checks  []CheckResult `json:"checks,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
}

// Passed reports whether the pass was skipped or every check passed.
func (v ValidationResult) Passed() bool {
	if v.Skipped {
		return true
	}
	for _, c := range v.Checks {
		if c.Status != CheckPassed {
			return false
		}
	}
	return true
}

// Failures returns the checks that did not pass, in run order.
func (v ValidationResult) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range v.Checks {
		if c.Status != CheckPassed {
			out = append(out, c)
		}
	}
	return out
}

// ExecStatus is the outcome of one Execute call.
type ExecStatus string

const (
	ExecSuccess ExecStatus = "success"
	ExecFailure ExecStatus = "failure"
	// ExecSkipped means the artifact was pushed but the CI run was not observed.
	ExecSkipped ExecStatus = "skipped"
	// ExecAborted means Execute stopped the run before a CI outcome existed.
	ExecAborted ExecStatus = "aborted"
)

// ExecutionResult records one Execute call.
type ExecutionResult struct {
	CommitID       string          `json:"commit_id,omitempty"`
	Status         ExecStatus      `json:"status"`
	Conclusion     string          `json:"conclusion,omitempty"`
	RawFailure     string          `json:"raw_failure,omitempty"`
	RunURL         string          `json:"run_url,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// GenStatus is the outcome of one Generate call.
type GenStatus string

const (
	GenSuccess GenStatus = "success"
	GenFailed  GenStatus = "failed"
	GenSkipped GenStatus = "skipped"
)

// GenerationAttempt records one Generate call.
type GenerationAttempt struct {
	Status     GenStatus      `json:"status"`
	Text       string         `json:"text,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Source     GenerateSource `json:"source"`
}

// RequiredFile is a repository file judged relevant to CI generation.
type RequiredFile struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	// Reduced is a summary shorter than Content, empty when not reduced.
	Reduced string `json:"reduced,omitempty"`
}

// Text returns the reduced content when available, otherwise the raw content.
func (f RequiredFile) Text() string {
	if f.Reduced != "" {
		return f.Reduced
	}
	return f.Content
}

// RepoInfo is repository metadata from the hosting service.
type RepoInfo struct {
	Owner         string   `json:"owner"`
	Name          string   `json:"name"`
	DefaultBranch string   `json:"default_branch"`
	Language      string   `json:"language,omitempty"`
	Description   string   `json:"description,omitempty"`
	Topics        []string `json:"topics,omitempty"`
	Stars         int      `json:"stars,omitempty"`
	HTMLURL       string   `json:"html_url,omitempty"`
}

// NodeTiming records how long one node execution took.
type NodeTiming struct {
	Node     NodeTag       `json:"node"`
	Duration time.Duration `json:"duration"`
}

// Final status tags. Outcome tags are written by Explain, infrastructure
// tags by the node that aborted the run.
const (
	StatusSuccess               = "success"
	StatusConfigErrorExhausted  = "configuration-error-exhausted"
	StatusProjectError          = "project-error"
	StatusToolError             = "tool-error"
	StatusUnknownError          = "unknown-error"
	StatusRepoInfoFailed        = "failed to get repo info"
	StatusCloneFailed           = "failed to clone repo"
	StatusBranchFailed          = "failed to create branch"
	StatusDeleteWorkflowsFailed = "failed to delete existing workflows"
	StatusPushFailed            = "failed to push changes"
	StatusFileTreeFailed        = "failed to get file tree"
	StatusSelectFilesFailed     = "failed to select required files"
	StatusReadFilesFailed       = "failed to read required files"
	StatusGenerateFailed        = "failed to generate workflow"
	StatusWriteFailed           = "failed to write workflow file"
	StatusStalled               = "stalled: identical workflow"
	StatusRunLookupFailed       = "failed to get workflow run"
	StatusPollExhausted         = "workflow run polling exhausted"
)

// OutcomeStatus maps a classified category to its outcome tag.
func OutcomeStatus(c Category) string {
	switch c {
	case CategoryConfig:
		return StatusConfigErrorExhausted
	case CategoryProject:
		return StatusProjectError
	case CategoryTool:
		return StatusToolError
	default:
		return StatusUnknownError
	}
}
