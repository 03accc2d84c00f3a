package workflows

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/metrics"
	"github.com/finclick-ai/orchestrator/internal/registry"
	"github.com/finclick-ai/orchestrator/internal/scheduler"
	"github.com/finclick-ai/orchestrator/internal/workload"
)

// Engine executes workflow graphs: sequential steps one after another
// and fanout groups as concurrent fork-join sets with a deterministic
// declaration-order merge.
type Engine struct {
	catalog   *Catalog
	scheduler *scheduler.Scheduler
	registry  *registry.Registry
	tracker   *workload.Tracker
	logger    *zap.Logger
}

// NewEngine creates a workflow engine over the given catalog.
func NewEngine(catalog *Catalog, sched *scheduler.Scheduler, reg *registry.Registry, tracker *workload.Tracker, logger *zap.Logger) *Engine {
	return &Engine{
		catalog:   catalog,
		scheduler: sched,
		registry:  reg,
		tracker:   tracker,
		logger:    logger,
	}
}

// Catalog exposes the engine's graph catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Run executes the graph for the state's kind and returns the final
// node's output. A sequential step failure aborts the run; a fanout
// sibling failure is recorded under the sibling's name and the group
// joins normally, so partial results remain usable.
func (e *Engine) Run(ctx context.Context, state *State) (any, error) {
	graph, ok := e.catalog.Graph(state.Kind())
	if !ok {
		return nil, fmt.Errorf("no graph for workflow kind %q", state.Kind())
	}

	var lastOutput any
	for _, node := range graph.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if node.IsFanout() {
			lastOutput = e.runGroup(ctx, state, node.Fanout)
		} else {
			agentID, result, err := e.runStep(ctx, state, node.StepDef)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", node.Name, err)
			}
			state.SetResult(node.Name, result)
			state.AddAgent(agentID)
			lastOutput = result
		}
		state.IncStep()
	}
	return lastOutput, nil
}

// runGroup dispatches every sibling concurrently and merges results in
// declaration order once all have finished.
func (e *Engine) runGroup(ctx context.Context, state *State, siblings []StepDef) map[string]any {
	type sibResult struct {
		agentID string
		result  agents.Result
		err     error
	}

	results := make([]sibResult, len(siblings))
	var wg sync.WaitGroup
	for i, step := range siblings {
		wg.Add(1)
		go func(i int, step StepDef) {
			defer wg.Done()
			agentID, result, err := e.runStep(ctx, state, step)
			results[i] = sibResult{agentID: agentID, result: result, err: err}
		}(i, step)
	}
	wg.Wait()

	merged := make(map[string]any, len(siblings))
	for i, step := range siblings {
		r := results[i]
		if r.agentID != "" {
			state.AddAgent(r.agentID)
		}
		if r.err != nil {
			e.logger.Warn("Fanout sibling failed",
				zap.String("workflow_id", state.ID()),
				zap.String("step", step.Name),
				zap.Error(r.err),
			)
			failure := agents.Result{"status": "failed", "error": r.err.Error()}
			state.SetResult(step.Name, failure)
			merged[step.Name] = failure
			continue
		}
		state.SetResult(step.Name, r.result)
		merged[step.Name] = r.result
	}
	return merged
}

// runStep selects an agent, builds the task from declared predecessor
// results, dispatches and records the workload movement.
func (e *Engine) runStep(ctx context.Context, state *State, step StepDef) (string, agents.Result, error) {
	agentID, err := e.scheduler.Select(step.Category)
	if err != nil {
		return "", nil, fmt.Errorf("select agent for %q: %w", step.Category, err)
	}
	_, exec, err := e.registry.Get(agentID)
	if err != nil {
		return "", nil, err
	}

	priority := step.Priority
	if priority == 0 {
		priority = state.Priority()
	}
	task := agents.NewTask(step.Category, e.taskInput(state, step), step.Requirements, priority)

	if err := e.tracker.BeginTask(agentID); err != nil {
		return "", nil, err
	}
	start := time.Now()
	result, err := exec.ExecuteTask(ctx, task)
	elapsed := time.Since(start)
	e.tracker.FinishTask(agentID, elapsed, err == nil)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordAgentTask(agentID, status, float64(elapsed.Milliseconds()))

	if err != nil {
		return agentID, nil, fmt.Errorf("agent %s: %w", agentID, err)
	}
	e.logger.Debug("Step completed",
		zap.String("workflow_id", state.ID()),
		zap.String("step", step.Name),
		zap.String("agent_id", agentID),
		zap.Duration("duration", elapsed),
	)
	return agentID, result, nil
}

// taskInput assembles the step's task payload: the workflow input for
// entry steps, otherwise the named predecessor results.
func (e *Engine) taskInput(state *State, step StepDef) map[string]any {
	if len(step.Inputs) == 0 {
		return state.Input()
	}
	input := make(map[string]any, len(step.Inputs))
	for _, name := range step.Inputs {
		if v, ok := state.Result(name); ok {
			input[name] = v
		}
	}
	return input
}
