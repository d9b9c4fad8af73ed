package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Batch states reported by BatchClient.Status.
const (
	BatchRunning    = "running"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
	BatchCanceled   = "canceled"
	BatchTerminated = "terminated"
	BatchTimedOut   = "timed_out"
	BatchUnknown    = "unknown"
)

// BatchRef identifies a submitted batch.
type BatchRef struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// BatchStatus is the state of a submitted batch. Result is set once the
// workflow has completed.
type BatchStatus struct {
	WorkflowID string       `json:"workflow_id"`
	Status     string       `json:"status"`
	Result     *BatchResult `json:"result,omitempty"`
}

// BatchClient submits and inspects batch workflows on a Temporal cluster.
type BatchClient struct {
	client    client.Client
	taskQueue string
	newID     func() string
}

// NewBatchClient creates a BatchClient. An empty taskQueue selects TaskQueue.
func NewBatchClient(c client.Client, taskQueue string) *BatchClient {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &BatchClient{
		client:    c,
		taskQueue: taskQueue,
		newID:     func() string { return "cigen-batch-" + uuid.NewString() },
	}
}

// Submit validates cfg and starts BatchEvaluationWorkflow.
func (b *BatchClient) Submit(ctx context.Context, cfg BatchConfig) (BatchRef, error) {
	if err := cfg.Validate(); err != nil {
		return BatchRef{}, err
	}
	run, err := b.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        b.newID(),
		TaskQueue: b.taskQueue,
	}, BatchEvaluationWorkflow, cfg)
	if err != nil {
		return BatchRef{}, fmt.Errorf("starting batch workflow: %w", err)
	}
	return BatchRef{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// Status reports the state of the batch started as workflowID.
func (b *BatchClient) Status(ctx context.Context, workflowID string) (BatchStatus, error) {
	if workflowID == "" {
		return BatchStatus{}, errors.New("workflow id is required")
	}
	desc, err := b.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return BatchStatus{}, fmt.Errorf("describing batch %s: %w", workflowID, err)
	}

	status := BatchStatus{
		WorkflowID: workflowID,
		Status:     batchState(desc.GetWorkflowExecutionInfo().GetStatus()),
	}
	if status.Status != BatchCompleted {
		return status, nil
	}

	var result BatchResult
	if err := b.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
		return BatchStatus{}, fmt.Errorf("fetching batch %s result: %w", workflowID, err)
	}
	status.Result = &result
	return status, nil
}

func batchState(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return BatchRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return BatchCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return BatchFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return BatchCanceled
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return BatchTerminated
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return BatchTimedOut
	default:
		return BatchUnknown
	}
}
