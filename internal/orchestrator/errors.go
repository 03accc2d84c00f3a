package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownWorkflowKind is returned for a kind with no catalog graph.
var ErrUnknownWorkflowKind = errors.New("unknown workflow kind")

// ErrInvalidTimeout is returned when the timeout is not positive.
var ErrInvalidTimeout = errors.New("timeout must be positive")

// TimeoutError reports that a workflow's overall deadline elapsed.
// Distinct from ExecutionError so callers can apply different retry
// policies.
type TimeoutError struct {
	WorkflowID string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("workflow %s timed out after %s", e.WorkflowID, e.Timeout)
}

// ExecutionError reports that a workflow failed for any reason other
// than the deadline.
type ExecutionError struct {
	WorkflowID string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("workflow %s failed: %v", e.WorkflowID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
