package orchestrator

import (
	"context"
	"fmt"
)

// Node performs one pipeline stage and returns only the fields it changed.
// Infrastructure failures are reported through Update.FinishEarly; a
// returned error means the run itself cannot continue (cancellation or a
// broken invariant).
type Node interface {
	Tag() NodeTag
	Run(ctx context.Context, s State) (Update, error)
}

// visit starts an update that records the node in the history.
func visit(tag NodeTag) Update {
	return Update{
		PrevNode:    ptr(tag),
		NodeHistory: []NodeTag{tag},
	}
}

// abort marks u as terminal with the given infrastructure status.
func abort(u Update, status string, err error) Update {
	u.FinishEarly = ptr(true)
	u.FinalStatus = ptr(status)
	if err != nil {
		u.Errors = append(u.Errors, fmt.Sprintf("%s: %v", status, err))
	}
	return u
}
