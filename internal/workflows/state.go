package workflows

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the mutable state of one workflow execution. Each State is
// exclusively owned by its own execution; the engine goroutine and the
// supervising goroutine may touch it concurrently around a deadline,
// so mutation goes through synchronized methods.
type State struct {
	mu sync.Mutex

	workflowID    string
	kind          Kind
	status        Status
	currentStep   int
	participating []string
	input         map[string]any
	results       *Results
	finalResult   any
	errMsg        string
	startedAt     time.Time
	completedAt   time.Time
	metadata      map[string]any
}

// NewState allocates a fresh workflow state. Metadata is fixed at
// creation and read-only afterwards.
func NewState(kind Kind, input map[string]any, metadata map[string]any) *State {
	return &State{
		workflowID: uuid.New().String(),
		kind:       kind,
		status:     StatusInitialized,
		input:      input,
		results:    NewResults(),
		metadata:   metadata,
	}
}

// ID returns the unique workflow id.
func (s *State) ID() string { return s.workflowID }

// Kind returns the workflow kind.
func (s *State) Kind() Kind { return s.kind }

// Input returns the caller-provided payload.
func (s *State) Input() map[string]any { return s.input }

// Metadata returns the creation-time metadata (priority, timeout,
// caller id). Not copied; treat as read-only.
func (s *State) Metadata() map[string]any { return s.metadata }

// Priority returns the caller's priority hint from metadata.
func (s *State) Priority() int {
	if p, ok := s.metadata["priority"].(int); ok {
		return p
	}
	return 0
}

// Status returns the current lifecycle status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentStep returns the number of completed graph nodes.
func (s *State) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep
}

// MarkRunning moves initialized → running and stamps the start time.
func (s *State) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInitialized {
		return
	}
	s.status = StatusRunning
	s.startedAt = time.Now()
}

// Complete marks the workflow completed with its final result. A no-op
// once a terminal status has been reached.
func (s *State) Complete(finalResult any) {
	s.terminate(StatusCompleted, "", finalResult)
}

// Fail marks the workflow failed with the causing message.
func (s *State) Fail(errMsg string) {
	s.terminate(StatusFailed, errMsg, nil)
}

// Timeout marks the workflow timed out.
func (s *State) Timeout(errMsg string) {
	s.terminate(StatusTimedOut, errMsg, nil)
}

func (s *State) terminate(status Status, errMsg string, finalResult any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = status
	s.errMsg = errMsg
	s.finalResult = finalResult
	s.completedAt = time.Now()
}

// IncStep advances the step counter by one. Called exactly once per
// sequential step and once per whole fan-out group.
func (s *State) IncStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStep++
}

// SetResult stores an intermediate step result under the step name.
func (s *State) SetResult(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results.Set(name, value)
}

// Result returns one intermediate step result.
func (s *State) Result(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results.Get(name)
}

// AddAgent records a participating agent id.
func (s *State) AddAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participating = append(s.participating, agentID)
}

// Snapshot is an immutable copy of a workflow state, safe to persist
// or serialize while the execution is still running.
type Snapshot struct {
	WorkflowID          string         `json:"workflow_id"`
	WorkflowType        Kind           `json:"workflow_type"`
	Status              Status         `json:"status"`
	CurrentStep         int            `json:"current_step"`
	ParticipatingAgents []string       `json:"participating_agents"`
	Input               map[string]any `json:"input"`
	IntermediateResults *Results       `json:"intermediate_results"`
	FinalResult         any            `json:"final_result,omitempty"`
	Error               string         `json:"error,omitempty"`
	StartedAt           time.Time      `json:"started_at"`
	CompletedAt         time.Time      `json:"completed_at,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Duration returns the wall-clock execution time.
func (sn Snapshot) Duration() time.Duration {
	if sn.CompletedAt.IsZero() {
		return 0
	}
	return sn.CompletedAt.Sub(sn.StartedAt)
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	participating := make([]string, len(s.participating))
	copy(participating, s.participating)

	return Snapshot{
		WorkflowID:          s.workflowID,
		WorkflowType:        s.kind,
		Status:              s.status,
		CurrentStep:         s.currentStep,
		ParticipatingAgents: participating,
		Input:               s.input,
		IntermediateResults: s.results.Clone(),
		FinalResult:         s.finalResult,
		Error:               s.errMsg,
		StartedAt:           s.startedAt,
		CompletedAt:         s.completedAt,
		Metadata:            s.metadata,
	}
}
