package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/broker"
	"github.com/finclick-ai/orchestrator/internal/metrics"
	"github.com/finclick-ai/orchestrator/internal/registry"
	"github.com/finclick-ai/orchestrator/internal/workflows"
	"github.com/finclick-ai/orchestrator/internal/workload"
)

// HistoryStore persists terminal workflow records. Callers must query
// persisted results, not the active set, once execution returns.
type HistoryStore interface {
	SaveWorkflow(ctx context.Context, snap workflows.Snapshot) error
}

// ResultCache holds recent workflow results for fast retrieval.
type ResultCache interface {
	Put(ctx context.Context, snap workflows.Snapshot) error
}

// Supervisor runs workflow graphs under a deadline, owns the
// active-workflow set and aggregates execution metrics.
type Supervisor struct {
	registry *registry.Registry
	tracker  *workload.Tracker
	engine   *workflows.Engine
	broker   *broker.Broker
	store    HistoryStore
	cache    ResultCache
	logger   *zap.Logger

	mu     sync.RWMutex
	active map[string]*workflows.State

	statsMu sync.Mutex
	stats   Stats
}

// Stats aggregates workflow execution counters. The average uses an
// accumulating mean so memory stays bounded.
type Stats struct {
	TotalWorkflows      int64   `json:"total_workflows"`
	SuccessfulWorkflows int64   `json:"successful_workflows"`
	FailedWorkflows     int64   `json:"failed_workflows"`
	TimedOutWorkflows   int64   `json:"timed_out_workflows"`
	AverageWorkflowTime float64 `json:"average_workflow_time"` // seconds
}

// Option tunes supervisor construction.
type Option func(*Supervisor)

// WithHistoryStore attaches a persistence backend for terminal records.
func WithHistoryStore(s HistoryStore) Option {
	return func(sup *Supervisor) { sup.store = s }
}

// WithResultCache attaches a recent-result cache.
func WithResultCache(c ResultCache) Option {
	return func(sup *Supervisor) { sup.cache = c }
}

// New creates a supervisor over the given components.
func New(reg *registry.Registry, tracker *workload.Tracker, engine *workflows.Engine, brk *broker.Broker, logger *zap.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		registry: reg,
		tracker:  tracker,
		engine:   engine,
		broker:   brk,
		logger:   logger,
		active:   make(map[string]*workflows.State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAgent stores the agent, creates its workload record with
// specialization scores, and routes it on the message broker when it
// can handle messages.
func (s *Supervisor) RegisterAgent(desc agents.Descriptor, exec agents.Executor) error {
	if err := s.registry.Register(desc, exec); err != nil {
		return err
	}
	s.tracker.Add(desc)
	if h, ok := exec.(agents.Handler); ok && s.broker != nil {
		s.broker.RegisterAgent(desc.ID, h)
	}
	s.logger.Info("Agent registered",
		zap.String("agent_id", desc.ID),
		zap.String("category", string(desc.Category)),
	)
	return nil
}

// DeregisterAgent removes the agent, its workload record and its
// broker route.
func (s *Supervisor) DeregisterAgent(id string) error {
	if err := s.registry.Deregister(id); err != nil {
		return err
	}
	s.tracker.Remove(id)
	if s.broker != nil {
		s.broker.DeregisterAgent(id)
	}
	return nil
}

// ExecuteWorkflow runs one workflow graph under a deadline of
// timeoutMinutes. It returns the terminal snapshot and, on failure, a
// *TimeoutError or *ExecutionError. The workflow always leaves the
// active set when this returns, whatever the outcome.
func (s *Supervisor) ExecuteWorkflow(ctx context.Context, kind workflows.Kind, input map[string]any, priority int, timeoutMinutes int) (workflows.Snapshot, error) {
	if _, ok := s.engine.Catalog().Graph(kind); !ok {
		return workflows.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownWorkflowKind, kind)
	}
	if timeoutMinutes <= 0 {
		return workflows.Snapshot{}, fmt.Errorf("%w: %d minutes", ErrInvalidTimeout, timeoutMinutes)
	}

	requestedBy := "system"
	if uid, ok := input["user_id"].(string); ok && uid != "" {
		requestedBy = uid
	}
	state := workflows.NewState(kind, input, map[string]any{
		"priority":        priority,
		"timeout_minutes": timeoutMinutes,
		"requested_by":    requestedBy,
	})

	s.mu.Lock()
	s.active[state.ID()] = state
	s.mu.Unlock()
	metrics.WorkflowsStarted.WithLabelValues(string(kind)).Inc()
	metrics.ActiveWorkflows.Inc()

	defer func() {
		s.mu.Lock()
		delete(s.active, state.ID())
		s.mu.Unlock()
		metrics.ActiveWorkflows.Dec()
		s.persist(state.Snapshot())
	}()

	s.logger.Info("Starting workflow",
		zap.String("workflow_id", state.ID()),
		zap.String("workflow_type", string(kind)),
		zap.Int("timeout_minutes", timeoutMinutes),
	)

	timeout := time.Duration(timeoutMinutes) * time.Minute
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state.MarkRunning()

	type outcome struct {
		final any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		final, err := s.engine.Run(runCtx, state)
		done <- outcome{final: final, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return s.finishTimeout(state, kind, timeout)
			}
			if errors.Is(out.err, context.Canceled) {
				return s.finishCanceled(state, kind, out.err)
			}
			state.Fail(out.err.Error())
			snap := state.Snapshot()
			s.recordCompletion(kind, snap, "failed")
			s.logger.Error("Workflow failed",
				zap.String("workflow_id", state.ID()),
				zap.Error(out.err),
			)
			return snap, &ExecutionError{WorkflowID: state.ID(), Err: out.err}
		}
		state.Complete(out.final)
		snap := state.Snapshot()
		s.recordCompletion(kind, snap, "completed")
		s.logger.Info("Workflow completed",
			zap.String("workflow_id", state.ID()),
			zap.Duration("duration", snap.Duration()),
		)
		return snap, nil

	case <-runCtx.Done():
		// The engine goroutine observes the context and unwinds; any
		// agent ignoring cancellation finishes in the background and
		// its result is discarded, with workload counters still
		// balanced by the dispatch wrapper. Caller cancellation is a
		// failure, not a timeout: only an elapsed deadline counts as
		// one.
		if errors.Is(runCtx.Err(), context.Canceled) {
			return s.finishCanceled(state, kind, runCtx.Err())
		}
		return s.finishTimeout(state, kind, timeout)
	}
}

func (s *Supervisor) finishCanceled(state *workflows.State, kind workflows.Kind, cause error) (workflows.Snapshot, error) {
	state.Fail("workflow canceled by caller")
	snap := state.Snapshot()
	s.recordCompletion(kind, snap, "failed")
	s.logger.Warn("Workflow canceled",
		zap.String("workflow_id", state.ID()),
	)
	return snap, &ExecutionError{WorkflowID: state.ID(), Err: cause}
}

func (s *Supervisor) finishTimeout(state *workflows.State, kind workflows.Kind, timeout time.Duration) (workflows.Snapshot, error) {
	state.Timeout(fmt.Sprintf("workflow %s timed out after %s", state.ID(), timeout))
	snap := state.Snapshot()
	s.recordCompletion(kind, snap, "timeout")
	s.logger.Error("Workflow timed out",
		zap.String("workflow_id", state.ID()),
		zap.Duration("timeout", timeout),
	)
	return snap, &TimeoutError{WorkflowID: state.ID(), Timeout: timeout}
}

func (s *Supervisor) recordCompletion(kind workflows.Kind, snap workflows.Snapshot, status string) {
	secs := snap.Duration().Seconds()

	s.statsMu.Lock()
	s.stats.TotalWorkflows++
	switch status {
	case "completed":
		s.stats.SuccessfulWorkflows++
	case "timeout":
		s.stats.TimedOutWorkflows++
	default:
		s.stats.FailedWorkflows++
	}
	s.stats.AverageWorkflowTime += (secs - s.stats.AverageWorkflowTime) / float64(s.stats.TotalWorkflows)
	s.statsMu.Unlock()

	metrics.RecordWorkflowMetrics(string(kind), status, secs)
}

// persist writes the terminal snapshot to the configured backends.
// Persistence failures are logged, never surfaced to the caller: the
// execution outcome stands on its own.
func (s *Supervisor) persist(snap workflows.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.SaveWorkflow(ctx, snap); err != nil {
			s.logger.Warn("Failed to persist workflow record",
				zap.String("workflow_id", snap.WorkflowID),
				zap.Error(err),
			)
		}
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, snap); err != nil {
			s.logger.Warn("Failed to cache workflow result",
				zap.String("workflow_id", snap.WorkflowID),
				zap.Error(err),
			)
		}
	}
}

// ActiveCount returns the number of workflows currently executing.
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// StatsSnapshot returns a copy of the aggregated counters.
func (s *Supervisor) StatsSnapshot() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}
