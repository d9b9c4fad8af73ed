package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/telemetry"
)

type harness struct {
	repo   *MockRepository
	gen    *MockGeneration
	checks *MockValidation
}

func newHarness() *harness {
	return &harness{repo: &MockRepository{}, gen: &MockGeneration{}, checks: &MockValidation{}}
}

func (h *harness) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithSleep(noSleep), WithClock(clock), WithPolling(0, 3)}, opts...)
	o, err := New(Deps{Repository: h.repo, Generation: h.gen, Validation: h.checks}, opts...)
	require.NoError(t, err)
	return o
}

// parseOK stubs a Parse that succeeds without optional sub-steps.
func (h *harness) parseOK(s State) {
	h.repo.On("GetInfo", mock.Anything, testRepoURL).Return(widgetInfo, nil)
	h.repo.On("Clone", mock.Anything, testRepoURL).Return(testClone, nil)
	h.repo.On("CreateBranch", mock.Anything, testClone, s.WorkBranch).Return(nil)
	h.repo.On("Exists", mock.Anything, testClone, WorkflowsDir).Return(false, nil)
	h.repo.On("ListFiles", mock.Anything, testClone).Return([]string{"go.mod", "main.go"}, nil)
	h.repo.On("WriteFile", mock.Anything, testClone, ".github/workflows/ci.yml", mock.Anything).Return(nil)
	h.repo.On("DeleteLocalClone", mock.Anything, testClone).Return(nil)
}

func (h *harness) generates(texts ...string) {
	for _, text := range texts {
		h.gen.On("Generate", mock.Anything, mock.Anything).
			Return(GenerationResult{Status: GenSuccess, Text: text, Instruction: "instr"}, nil).Once()
	}
}

func (h *harness) lint(outputs ...CheckOutput) {
	for _, out := range outputs {
		h.checks.On("RunCheck", mock.Anything, "actionlint", testClone).Return(out, nil).Once()
	}
}

func (h *harness) explainOK() {
	h.gen.On("Explain", mock.Anything, mock.Anything).Return("explanation", nil)
	h.repo.On("OpenMergeRequest", mock.Anything, testRepoURL, mock.Anything).Return("https://github.com/acme/widget/pull/1", nil)
}

var (
	lintFinding = CheckOutput{Status: CheckFailed, RawOutput: `ci.yml:4:3: unexpected key "step" for "job" section`}
	lintPass    = CheckOutput{Status: CheckPassed}
)

// scenarioState enables only actionlint and skips the optional Parse steps.
func scenarioState(t *testing.T, loopMax int) State {
	t.Helper()
	s := newTestState(t, loopMax)
	s.Options.Checks = map[string]bool{"actionlint": true}
	s.Options.SelectRequiredFiles = false
	s.Options.BestPractices = false
	return s
}

func TestNew_RequiresServices(t *testing.T) {
	h := newHarness()
	_, err := New(Deps{Generation: h.gen, Validation: h.checks})
	assert.Error(t, err)
	_, err = New(Deps{Repository: h.repo, Validation: h.checks})
	assert.Error(t, err)
	_, err = New(Deps{Repository: h.repo, Generation: h.gen})
	assert.Error(t, err)

	_, err = New(Deps{Repository: h.repo, Generation: h.gen, Validation: h.checks}, WithPolling(0, 0))
	assert.Error(t, err)
}

func TestRun_RejectsUninitializedState(t *testing.T) {
	o := newHarness().orchestrator(t)
	_, err := o.Run(context.Background(), State{RepoURL: testRepoURL})
	assert.Error(t, err)
}

// Scenario 1: validation fails twice with configError, passes on the third
// attempt, CI succeeds.
func TestRun_ValidationRetriesThenSuccess(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 3)
	h.parseOK(s)
	h.generates("v1", "v2", "v3")
	h.lint(lintFinding, lintFinding, lintPass)
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c3", nil).Once()
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c3").Return(RunResult{State: RunCompleted, Conclusion: "success"}, nil)
	h.explainOK()

	final, err := h.orchestrator(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 3, final.LoopCount)
	assert.Equal(t, []NodeTag{
		NodeParse, NodeGenerate, NodeValidate, NodeGenerate, NodeValidate, NodeGenerate, NodeValidate, NodeExecute, NodeExplain,
	}, final.NodeHistory)
	assert.Equal(t, StatusSuccess, final.FinalStatus)
	assert.False(t, final.FinishEarly)
	assert.Equal(t, "v3", final.Artifact)
	assert.Equal(t, 3, final.Transcript.Len())
	assert.Len(t, final.NodeTimings, len(final.NodeHistory))
	assert.Equal(t, "https://github.com/acme/widget/pull/1", final.MergeRequestURL)

	sources := []GenerateSource{}
	for _, a := range final.GenerationAttempts {
		sources = append(sources, a.Source)
	}
	assert.Equal(t, []GenerateSource{FromParse, FromValidate, FromValidate}, sources)

	h.repo.AssertCalled(t, "DeleteLocalClone", mock.Anything, testClone)
	h.repo.AssertExpectations(t)
	h.gen.AssertExpectations(t)
	h.checks.AssertExpectations(t)
}

// Scenario 2: a projectError from CI goes straight to Explain.
func TestRun_ProjectErrorIsNotRetried(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 5)
	h.parseOK(s)
	h.generates("v1")
	h.lint(lintPass)
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c1", nil)
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c1").Return(RunResult{
		State:         RunCompleted,
		Conclusion:    "failure",
		FailureDetail: "--- FAIL: TestWidget (0.01s)\n    widget_test.go:12: got 1, want 2",
	}, nil)
	h.explainOK()

	final, err := h.orchestrator(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, []NodeTag{NodeParse, NodeGenerate, NodeValidate, NodeExecute, NodeExplain}, final.NodeHistory)
	assert.Equal(t, StatusProjectError, final.FinalStatus)
	assert.Equal(t, 1, final.LoopCount)
	h.gen.AssertNumberOfCalls(t, "Generate", 1)
}

// Scenario 3: validation keeps failing, the budget forces Execute, and the
// outcome comes from CI.
func TestRun_ValidateBudgetForcesExecute(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 2)
	h.parseOK(s)
	h.generates("v1", "v2")
	h.lint(lintFinding, lintFinding)
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c2", nil)
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c2").Return(RunResult{
		State:         RunCompleted,
		Conclusion:    "failure",
		FailureDetail: "FAIL github.com/acme/widget [build failed]",
	}, nil)
	h.explainOK()

	final, err := h.orchestrator(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 2, final.LoopCount)
	assert.Equal(t, []NodeTag{
		NodeParse, NodeGenerate, NodeValidate, NodeGenerate, NodeValidate, NodeExecute, NodeExplain,
	}, final.NodeHistory)
	v, _ := final.LatestValidation()
	assert.False(t, v.Passed())
	assert.Equal(t, StatusProjectError, final.FinalStatus)
}

// Scenario 4: a clone failure aborts inside Parse.
func TestRun_CloneFailureAbortsEarly(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 3)
	h.repo.On("GetInfo", mock.Anything, testRepoURL).Return(widgetInfo, nil)
	h.repo.On("Clone", mock.Anything, testRepoURL).Return("", errors.New("dial tcp: i/o timeout"))

	final, err := h.orchestrator(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, final.FinishEarly)
	assert.Equal(t, []NodeTag{NodeParse}, final.NodeHistory)
	assert.Equal(t, StatusCloneFailed, final.FinalStatus)
	assert.Empty(t, final.GenerationAttempts)
	assert.Empty(t, final.ValidationResults)
	assert.Empty(t, final.ExecutionResults)
	assert.Zero(t, final.LoopCount)
	h.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	h.repo.AssertNotCalled(t, "OpenMergeRequest", mock.Anything, mock.Anything, mock.Anything)
	h.repo.AssertNotCalled(t, "DeleteLocalClone", mock.Anything, mock.Anything)
}

// Scenario 5: a revision reproduces the committed artifact.
func TestRun_IdenticalArtifactStalls(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 5)
	h.parseOK(s)
	h.generates("same", "same")
	h.lint(lintPass, lintPass)
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c1", nil).Once()
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c1").Return(RunResult{
		State:         RunCompleted,
		Conclusion:    "failure",
		FailureDetail: "/bin/sh: poetry: command not found",
	}, nil)

	final, err := h.orchestrator(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, final.FinishEarly)
	assert.Equal(t, StatusStalled, final.FinalStatus)
	assert.Equal(t, []NodeTag{
		NodeParse, NodeGenerate, NodeValidate, NodeExecute, NodeGenerate, NodeValidate, NodeExecute,
	}, final.NodeHistory)
	require.Len(t, final.ExecutionResults, 2)
	assert.Equal(t, ExecAborted, final.ExecutionResults[1].Status)
	h.repo.AssertNumberOfCalls(t, "CommitAndPush", 1)
	h.repo.AssertNotCalled(t, "OpenMergeRequest", mock.Anything, mock.Anything, mock.Anything)
	h.repo.AssertCalled(t, "DeleteLocalClone", mock.Anything, testClone)
}

func TestRun_ExecuteLoopBackUntilBudget(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 2)
	h.parseOK(s)
	h.generates("v1", "v2")
	h.lint(lintPass, lintPass)
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c1", nil).Once()
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c2", nil).Once()
	configFailure := RunResult{State: RunCompleted, Conclusion: "failure", FailureDetail: "Error: Unable to resolve action `actions/setup-gp@v5`"}
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c1").Return(configFailure, nil)
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c2").Return(configFailure, nil)
	h.explainOK()

	final, err := h.orchestrator(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, []NodeTag{
		NodeParse, NodeGenerate, NodeValidate, NodeExecute, NodeGenerate, NodeValidate, NodeExecute, NodeExplain,
	}, final.NodeHistory)
	assert.Equal(t, StatusConfigErrorExhausted, final.FinalStatus)
	assert.Equal(t, FromExecute, final.GenerationAttempts[1].Source)
	assert.LessOrEqual(t, len(final.NodeHistory), StepLimit(s.LoopMax))
}

func TestRun_StepLimitGuard(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 2)
	h.parseOK(s)
	h.checks.On("RunCheck", mock.Anything, "actionlint", testClone).Return(lintFinding, nil)

	o := h.orchestrator(t)
	// A Generate that never advances the loop counter breaks the budget.
	o.nodes[NodeGenerate] = nodeFunc{tag: NodeGenerate, run: func(context.Context, State) (Update, error) {
		return visit(NodeGenerate), nil
	}}

	final, err := o.Run(context.Background(), s)
	require.ErrorIs(t, err, ErrStepLimit)
	assert.Len(t, final.NodeHistory, StepLimit(s.LoopMax))
	h.repo.AssertCalled(t, "DeleteLocalClone", mock.Anything, testClone)
}

func TestRun_CancelledBetweenNodes(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 3)
	h.parseOK(s)
	h.generates("v1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := h.orchestrator(t, WithProgress(func(p Progress) {
		if p.Node == NodeGenerate && p.Status == ProgressCompleted {
			cancel()
		}
	}))

	final, err := o.Run(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []NodeTag{NodeParse, NodeGenerate}, final.NodeHistory)
	h.checks.AssertNotCalled(t, "RunCheck", mock.Anything, mock.Anything, mock.Anything)
	h.repo.AssertCalled(t, "DeleteLocalClone", mock.Anything, testClone)
}

func TestRun_ReleaseFailureIsLoggedOnly(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 1)
	h.repo.On("GetInfo", mock.Anything, testRepoURL).Return(widgetInfo, nil)
	h.repo.On("Clone", mock.Anything, testRepoURL).Return(testClone, nil)
	h.repo.On("CreateBranch", mock.Anything, testClone, s.WorkBranch).Return(errors.New("ref exists"))
	h.repo.On("DeleteLocalClone", mock.Anything, testClone).Return(errors.New("busy"))

	logger := logging.NewTestLogger()
	final, err := h.orchestrator(t, WithLogger(logger.Logger)).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, StatusBranchFailed, final.FinalStatus)
	assert.Len(t, final.Errors, 1, "release failure does not touch state")
	logger.AssertLogged(t, zapcore.WarnLevel, "failed to release working copy")
	logger.AssertLogged(t, zapcore.WarnLevel, "run aborted")
	logger.AssertRunCorrelation(t, "run finished", s.RunID)
}

func TestRun_ProgressReports(t *testing.T) {
	h := newHarness()
	s := scenarioState(t, 3)
	h.parseOK(s)
	h.generates("v1")
	h.lint(lintPass)
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c1", nil)
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c1").Return(RunResult{State: RunCompleted, Conclusion: "success"}, nil)
	h.explainOK()

	var reports []Progress
	_, err := h.orchestrator(t, WithProgress(func(p Progress) { reports = append(reports, p) })).Run(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, reports, 10)
	for i, p := range reports {
		assert.Equal(t, i/2+1, p.Step)
		assert.Equal(t, StepLimit(3), p.StepLimit)
		assert.Equal(t, s.RunID, p.RunID)
	}
	assert.Equal(t, ProgressStarted, reports[0].Status)
	assert.Equal(t, NodeExplain, reports[9].Node)
	assert.Equal(t, StatusSuccess, reports[9].Message)
}

func TestRun_Telemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	h := newHarness()
	s := scenarioState(t, 3)
	h.parseOK(s)
	h.generates("v1", "v2")
	h.lint(lintFinding, lintPass)
	h.repo.On("CommitAndPush", mock.Anything, testClone, mock.Anything).Return("c1", nil)
	h.repo.On("GetRunResult", mock.Anything, testRepoURL, "c1").Return(RunResult{State: RunCompleted, Conclusion: "success"}, nil)
	h.explainOK()

	o := h.orchestrator(t, WithMeter(tel.Meter("test")), WithTracer(tel.Tracer("test")))
	_, err := o.Run(context.Background(), s)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, int64(1), tel.Int64Sum(ctx, "cigen.orchestrator.runs", attribute.String("status", StatusSuccess)))
	assert.Equal(t, int64(2), tel.Int64Sum(ctx, "cigen.orchestrator.node.executions", attribute.String("node", "generate")))
	assert.Equal(t, int64(1), tel.Int64Sum(ctx, "cigen.orchestrator.generate.calls", attribute.String("source", "from_validate")))
	assert.Equal(t, int64(0), tel.Int64Sum(ctx, "cigen.orchestrator.runs.active"))

	assert.Contains(t, tel.SpanNames(), "orchestrator.run")
	assert.NotNil(t, tel.Span("node.execute"))
	tel.AssertSpanAttribute(t, "orchestrator.run", "run.final_status", StatusSuccess)
}

func TestEvaluate(t *testing.T) {
	h := newHarness()
	_, err := h.orchestrator(t).Evaluate(context.Background(), RunConfig{})
	assert.Error(t, err)
}

type nodeFunc struct {
	tag NodeTag
	run func(context.Context, State) (Update, error)
}

func (n nodeFunc) Tag() NodeTag { return n.tag }

func (n nodeFunc) Run(ctx context.Context, s State) (Update, error) { return n.run(ctx, s) }
