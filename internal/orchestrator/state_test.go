package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cigen/internal/config"
)

func TestNewState_Defaults(t *testing.T) {
	s, err := NewState(RunConfig{RepoURL: "https://github.com/acme/widget", Model: "gpt-4o"})
	require.NoError(t, err)

	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, 5, s.LoopMax)
	assert.Equal(t, 5, s.ValidateLoopMax)
	assert.Equal(t, 5, s.MaxRequiredFiles)
	assert.Equal(t, "ci.yml", s.ArtifactName)
	assert.Equal(t, ".github/workflows/ci.yml", s.ArtifactPath())
	assert.Equal(t, "cigen/gpt-4o", s.WorkBranch)
	assert.NotNil(t, s.Options.Checks)
	assert.Zero(t, s.LoopCount)
	assert.Empty(t, s.NodeHistory)
}

func TestNewState_ClampsValidateLoopMax(t *testing.T) {
	s, err := NewState(RunConfig{RepoURL: "u", LoopMax: 3, ValidateLoopMax: 9})
	require.NoError(t, err)
	assert.Equal(t, 3, s.ValidateLoopMax)

	s, err = NewState(RunConfig{RepoURL: "u", LoopMax: 3, ValidateLoopMax: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, s.ValidateLoopMax)
}

func TestNewState_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  RunConfig
	}{
		{"missing url", RunConfig{}},
		{"blank url", RunConfig{RepoURL: "  "}},
		{"negative loop max", RunConfig{RepoURL: "u", LoopMax: -1}},
		{"negative files", RunConfig{RepoURL: "u", MaxRequiredFiles: -2}},
		{"artifact with dir", RunConfig{RepoURL: "u", ArtifactName: "sub/ci.yml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewState(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewState_UniqueRunIDs(t *testing.T) {
	a, err := NewState(RunConfig{RepoURL: "u"})
	require.NoError(t, err)
	b, err := NewState(RunConfig{RepoURL: "u"})
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestDefaultWorkBranch(t *testing.T) {
	assert.Equal(t, "cigen/claude-3.5", DefaultWorkBranch("", "claude-3.5", "abc"))
	assert.Equal(t, "bot/gpt-4o-mini", DefaultWorkBranch("bot", "gpt 4o mini", "abc"))
	assert.Equal(t, "cigen/a-b-c", DefaultWorkBranch("", "a..b:c", "abc"))
	assert.Equal(t, "cigen/12345678", DefaultWorkBranch("", "", "1234567890"))
}

func TestRunConfigFrom(t *testing.T) {
	p := config.NewDefaultConfig().Pipeline
	p.Options.Checks = []string{"yaml", "secrets"}

	rc := RunConfigFrom(p, "https://github.com/acme/widget", "gpt-4o")

	assert.Equal(t, "https://github.com/acme/widget", rc.RepoURL)
	assert.Equal(t, p.LoopMax, rc.LoopMax)
	assert.Equal(t, rc.LoopMax, rc.ValidateLoopMax)
	assert.Equal(t, []string{"yaml", "secrets"}, rc.Options.EnabledChecks())

	s, err := NewState(rc)
	require.NoError(t, err)
	assert.Equal(t, "cigen/gpt-4o", s.WorkBranch)
}

func TestRunConfigFrom_DefaultsKeepValidationLoopingToBudget(t *testing.T) {
	s, err := NewState(RunConfigFrom(config.NewDefaultConfig().Pipeline, "https://github.com/acme/widget", "gpt-4o"))
	require.NoError(t, err)
	require.Equal(t, s.LoopMax, s.ValidateLoopMax)

	s.ValidationResults = []ValidationResult{{Checks: []CheckResult{failedCheck("actionlint", CategoryConfig)}}}
	for s.LoopCount = 1; s.LoopCount < s.LoopMax; s.LoopCount++ {
		assert.False(t, ProceedToExecute(s), "loop %d of %d", s.LoopCount, s.LoopMax)
	}
	assert.True(t, ProceedToExecute(s), "budget exhausted")
}

func TestRunConfigFrom_ValidateLoopMaxOptIn(t *testing.T) {
	p := config.NewDefaultConfig().Pipeline
	p.ValidateLoopMax = 2
	assert.Equal(t, 2, RunConfigFrom(p, "u", "m").ValidateLoopMax)

	p.ValidateLoopMax = p.LoopMax + 4
	assert.Equal(t, p.LoopMax, RunConfigFrom(p, "u", "m").ValidateLoopMax)
}

func TestOptions_EnabledChecksOrder(t *testing.T) {
	o := Options{Checks: map[string]bool{"secrets": true, "yaml": true, "ghalint": false}}
	assert.Equal(t, []string{"yaml", "secrets"}, o.EnabledChecks())
	assert.Equal(t, CheckOrder, DefaultOptions().EnabledChecks())
}

func TestSourceFor(t *testing.T) {
	for prev, want := range map[NodeTag]GenerateSource{
		NodeParse:    FromParse,
		NodeValidate: FromValidate,
		NodeExecute:  FromExecute,
	} {
		got, err := SourceFor(prev)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for _, prev := range []NodeTag{"", NodeGenerate, NodeExplain} {
		_, err := SourceFor(prev)
		assert.True(t, errors.Is(err, ErrInvalidSource), "prev %q", prev)
	}
}

func TestStepLimit(t *testing.T) {
	assert.Equal(t, 6, StepLimit(1))
	assert.Equal(t, 8, StepLimit(2))
	assert.Equal(t, 11, StepLimit(3))
	assert.Equal(t, 17, StepLimit(5))
}

func TestApply_ScalarsLastWriteWins(t *testing.T) {
	s := State{Language: "Go", LoopCount: 1}

	next := s.Apply(Update{LoopCount: ptr(2)})
	assert.Equal(t, 2, next.LoopCount)
	assert.Equal(t, "Go", next.Language, "nil pointer leaves field unchanged")

	next = next.Apply(Update{Language: ptr("")})
	assert.Equal(t, "", next.Language, "explicit zero value is written")
}

func TestApply_LogsAppend(t *testing.T) {
	s := State{
		NodeHistory:        []NodeTag{NodeParse},
		GenerationAttempts: []GenerationAttempt{{Status: GenSuccess, Text: "a"}},
		Errors:             []string{"first"},
	}
	next := s.Apply(Update{
		NodeHistory:        []NodeTag{NodeGenerate},
		GenerationAttempts: []GenerationAttempt{{Status: GenSuccess, Text: "b"}},
		Errors:             []string{"second"},
	})

	assert.Equal(t, []NodeTag{NodeParse, NodeGenerate}, next.NodeHistory)
	assert.Equal(t, "b", next.GenerationAttempts[1].Text)
	assert.Equal(t, []string{"first", "second"}, next.Errors)
	assert.Len(t, s.NodeHistory, 1, "receiver is unchanged")
}

func TestApply_ReplacesFileLists(t *testing.T) {
	s := State{FileTree: []string{"a", "b"}, RequiredFiles: []RequiredFile{{Path: "a"}}}

	next := s.Apply(Update{FileTree: &[]string{"c"}})
	assert.Equal(t, []string{"c"}, next.FileTree)
	assert.Equal(t, s.RequiredFiles, next.RequiredFiles)

	next = next.Apply(Update{RequiredFiles: &[]RequiredFile{}})
	assert.Empty(t, next.RequiredFiles)
}

func TestApply_DoesNotAlias(t *testing.T) {
	tree := []string{"a"}
	u := Update{FileTree: &tree, Errors: []string{"x"}}

	next := State{}.Apply(u)
	tree[0] = "mutated"
	u.Errors[0] = "mutated"

	assert.Equal(t, []string{"a"}, next.FileTree)
	assert.Equal(t, []string{"x"}, next.Errors)

	// Two states derived from one parent must not share a backing array.
	base := State{Errors: make([]string, 1, 8)}
	left := base.Apply(Update{Errors: []string{"left"}})
	right := base.Apply(Update{Errors: []string{"right"}})
	assert.Equal(t, "left", left.Errors[1])
	assert.Equal(t, "right", right.Errors[1])
}

func TestApply_FinishEarlyIsSticky(t *testing.T) {
	s := State{}.Apply(Update{FinishEarly: ptr(true), FinalStatus: ptr(StatusCloneFailed)})
	require.True(t, s.FinishEarly)

	s = s.Apply(Update{FinishEarly: ptr(false), FinalStatus: ptr(StatusSuccess)})
	assert.True(t, s.FinishEarly)
	assert.Equal(t, StatusCloneFailed, s.FinalStatus, "final status is written once")
}

func TestLatestResults(t *testing.T) {
	var s State
	_, ok := s.LatestValidation()
	assert.False(t, ok)
	_, ok = s.LatestExecution()
	assert.False(t, ok)

	s = s.Apply(Update{
		ValidationResults: []ValidationResult{{Skipped: true}, {Checks: []CheckResult{{Name: "yaml", Status: CheckFailed}}}},
		ExecutionResults:  []ExecutionResult{{Status: ExecFailure}, {Status: ExecSuccess}},
	})
	v, ok := s.LatestValidation()
	require.True(t, ok)
	assert.False(t, v.Passed())
	e, ok := s.LatestExecution()
	require.True(t, ok)
	assert.Equal(t, ExecSuccess, e.Status)
}

func TestValidationResult_Failures(t *testing.T) {
	v := ValidationResult{Checks: []CheckResult{
		{Name: "yaml", Status: CheckPassed},
		{Name: "actionlint", Status: CheckFailed},
		{Name: "ghalint", Status: CheckToolError},
	}}
	assert.False(t, v.Passed())
	fails := v.Failures()
	require.Len(t, fails, 2)
	assert.Equal(t, "actionlint", fails[0].Name)
	assert.Equal(t, "ghalint", fails[1].Name)

	assert.True(t, ValidationResult{Skipped: true}.Passed())
	assert.True(t, ValidationResult{}.Passed())
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, StatusConfigErrorExhausted, OutcomeStatus(CategoryConfig))
	assert.Equal(t, StatusProjectError, OutcomeStatus(CategoryProject))
	assert.Equal(t, StatusToolError, OutcomeStatus(CategoryTool))
	assert.Equal(t, StatusUnknownError, OutcomeStatus(CategoryUnknown))
	assert.Equal(t, StatusUnknownError, OutcomeStatus(""))
}

func TestCategory_Retryable(t *testing.T) {
	assert.True(t, CategoryConfig.Retryable())
	assert.False(t, CategoryProject.Retryable())
	assert.False(t, CategoryTool.Retryable())
	assert.False(t, CategoryUnknown.Retryable())
}
