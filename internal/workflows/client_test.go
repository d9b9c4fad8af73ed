package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestBatchClient_Submit(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("cigen-batch-1")
	run.On("GetRunID").Return("run-1")

	cfg := BatchConfig{Repos: []string{repoA}, Model: "m"}
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "cigen-batch-1" && o.TaskQueue == "queue"
		}),
		mock.Anything, cfg,
	).Return(run, nil)

	b := NewBatchClient(c, "queue")
	b.newID = func() string { return "cigen-batch-1" }

	ref, err := b.Submit(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, BatchRef{WorkflowID: "cigen-batch-1", RunID: "run-1"}, ref)
	c.AssertExpectations(t)
}

func TestBatchClient_SubmitRejectsInvalidConfig(t *testing.T) {
	c := &mocks.Client{}
	b := NewBatchClient(c, "")
	assert.Equal(t, TaskQueue, b.taskQueue)

	_, err := b.Submit(context.Background(), BatchConfig{Model: "m"})
	assert.ErrorContains(t, err, "Repos must not be empty")
	c.AssertNotCalled(t, "ExecuteWorkflow")
}

func TestBatchClient_SubmitError(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("namespace not found"))

	_, err := NewBatchClient(c, "").Submit(context.Background(), BatchConfig{Repos: []string{repoA}, Model: "m"})
	assert.ErrorContains(t, err, "namespace not found")
}

func describe(status enumspb.WorkflowExecutionStatus) *workflowservice.DescribeWorkflowExecutionResponse {
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{Status: status},
	}
}

func TestBatchClient_Status(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "wf", "").
			Return(describe(enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING), nil)

		got, err := NewBatchClient(c, "").Status(context.Background(), "wf")
		require.NoError(t, err)
		assert.Equal(t, BatchStatus{WorkflowID: "wf", Status: BatchRunning}, got)
	})

	t.Run("completed", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "wf", "").
			Return(describe(enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED), nil)

		run := &mocks.WorkflowRun{}
		run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			res := args.Get(1).(*BatchResult)
			res.Add(RepoRunResult{RepoURL: repoA, FinalStatus: "success"})
		}).Return(nil)
		c.On("GetWorkflow", mock.Anything, "wf", "").Return(run)

		got, err := NewBatchClient(c, "").Status(context.Background(), "wf")
		require.NoError(t, err)
		assert.Equal(t, BatchCompleted, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, 1, got.Result.Succeeded)
	})

	t.Run("describe error", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("DescribeWorkflowExecution", mock.Anything, "wf", "").
			Return(nil, errors.New("not found"))

		_, err := NewBatchClient(c, "").Status(context.Background(), "wf")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("requires id", func(t *testing.T) {
		_, err := NewBatchClient(&mocks.Client{}, "").Status(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestBatchState(t *testing.T) {
	assert.Equal(t, BatchFailed, batchState(enumspb.WORKFLOW_EXECUTION_STATUS_FAILED))
	assert.Equal(t, BatchTimedOut, batchState(enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT))
	assert.Equal(t, BatchUnknown, batchState(enumspb.WORKFLOW_EXECUTION_STATUS_UNSPECIFIED))
}
