package workload

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
)

// Record is a snapshot of one agent's live workload. Counters never go
// negative and specialization scores are clamped to [0,1].
type Record struct {
	AgentID              string             `json:"agent_id"`
	CurrentTasks         int                `json:"current_tasks"`
	QueuedTasks          int                `json:"queued_tasks"`
	AverageExecutionTime float64            `json:"average_execution_time"` // seconds
	SuccessRate          float64            `json:"success_rate"`           // 0-100
	LastTaskCompletion   time.Time          `json:"last_task_completion"`
	SpecializationScores map[string]float64 `json:"specialization_scores"`
}

type record struct {
	currentTasks   int
	queuedTasks    int
	avgExecTime    float64
	totalTasks     int
	successfulTask int
	lastCompletion time.Time
	scores         map[string]float64
}

func (r *record) successRate() float64 {
	if r.totalTasks == 0 {
		return 100.0
	}
	return 100.0 * float64(r.successfulTask) / float64(r.totalTasks)
}

// Tracker owns one workload record per registered agent. It is shared
// across concurrent workflow executions and internally synchronized so
// parallel fan-out siblings never race on counter updates.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record
	logger  *zap.Logger
}

// NewTracker creates an empty workload tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		logger:  logger,
	}
}

// Add creates the workload record for a newly registered agent,
// computing its specialization scores once. Re-adding recomputes them.
func (t *Tracker) Add(desc agents.Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[desc.ID] = &record{scores: computeScores(desc)}
}

// Remove drops an agent's workload record on deregistration.
func (t *Tracker) Remove(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, agentID)
}

// BeginTask increments the agent's in-flight counter at dispatch.
func (t *Tracker) BeginTask(agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[agentID]
	if !ok {
		return fmt.Errorf("workload record for agent %s not found", agentID)
	}
	r.currentTasks++
	return nil
}

// FinishTask decrements the in-flight counter and folds the execution
// into the rolling average and success rate. Called on success and
// failure alike so counters return to their pre-dispatch value.
func (t *Tracker) FinishTask(agentID string, duration time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[agentID]
	if !ok {
		return
	}
	if r.currentTasks > 0 {
		r.currentTasks--
	}
	r.totalTasks++
	if success {
		r.successfulTask++
	}
	secs := duration.Seconds()
	r.avgExecTime += (secs - r.avgExecTime) / float64(r.totalTasks)
	r.lastCompletion = time.Now()
}

// Enqueue and Dequeue track tasks waiting on an agent.
func (t *Tracker) Enqueue(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[agentID]; ok {
		r.queuedTasks++
	}
}

func (t *Tracker) Dequeue(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[agentID]; ok && r.queuedTasks > 0 {
		r.queuedTasks--
	}
}

// Snapshot returns a copy of one agent's record.
func (t *Tracker) Snapshot(agentID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[agentID]
	if !ok {
		return Record{}, false
	}
	return t.export(agentID, r), true
}

// All returns copies of every record, sorted by agent id for
// deterministic iteration.
func (t *Tracker) All() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, 0, len(t.records))
	for id, r := range t.records {
		out = append(out, t.export(id, r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// AverageQueueLength reports the mean queued-task count across agents.
func (t *Tracker) AverageQueueLength() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.records) == 0 {
		return 0
	}
	total := 0
	for _, r := range t.records {
		total += r.queuedTasks
	}
	return float64(total) / float64(len(t.records))
}

func (t *Tracker) export(id string, r *record) Record {
	scores := make(map[string]float64, len(r.scores))
	for k, v := range r.scores {
		scores[k] = v
	}
	return Record{
		AgentID:              id,
		CurrentTasks:         r.currentTasks,
		QueuedTasks:          r.queuedTasks,
		AverageExecutionTime: r.avgExecTime,
		SuccessRate:          r.successRate(),
		LastTaskCompletion:   r.lastCompletion,
		SpecializationScores: scores,
	}
}
