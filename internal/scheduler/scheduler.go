package scheduler

import (
	"errors"

	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/registry"
	"github.com/finclick-ai/orchestrator/internal/workload"
)

// ErrNoAgents is returned when selection is attempted with an empty
// registry. With at least one registered agent, Select always picks.
var ErrNoAgents = errors.New("no agents registered")

// Scoring weights for candidate ranking.
const (
	weightSpecialization = 0.5
	weightPerformance    = 0.3
	weightLoad           = 0.2
)

// Scheduler ranks agents for a task category using specialization,
// success rate and live load. Selection is a pure read; workload
// counters move at dispatch, not here.
type Scheduler struct {
	registry *registry.Registry
	tracker  *workload.Tracker
	logger   *zap.Logger
}

// New creates a scheduler over the given registry and tracker.
func New(reg *registry.Registry, tracker *workload.Tracker, logger *zap.Logger) *Scheduler {
	return &Scheduler{registry: reg, tracker: tracker, logger: logger}
}

// Select picks the best agent for a task category.
//
// Candidates are agents whose score map contains the category with a
// score > 0; each is ranked by a weighted blend of specialization,
// success rate and inverse load. Ties break by ascending agent id so
// selection is deterministic. With no candidate, any idle agent wins,
// then the globally least-busy one.
func (s *Scheduler) Select(taskCategory string) (string, error) {
	records := s.tracker.All()
	if len(records) == 0 {
		return "", ErrNoAgents
	}

	bestID := ""
	bestScore := -1.0
	for _, rec := range records {
		spec, ok := rec.SpecializationScores[taskCategory]
		if !ok || spec <= 0 {
			continue
		}
		loadFactor := 1.0 / float64(1+rec.CurrentTasks+rec.QueuedTasks)
		overall := spec*weightSpecialization +
			(rec.SuccessRate/100.0)*weightPerformance +
			loadFactor*weightLoad
		// Records are sorted by agent id, so strict > keeps the
		// lowest id on ties.
		if overall > bestScore {
			bestScore = overall
			bestID = rec.AgentID
		}
	}
	if bestID != "" {
		return bestID, nil
	}

	// Fallback 1: any idle agent, lowest id first.
	statuses := s.registry.Statuses()
	for _, rec := range records {
		if statuses[rec.AgentID] == agents.StatusIdle {
			s.logger.Debug("No specialist for category, using idle agent",
				zap.String("category", taskCategory),
				zap.String("agent_id", rec.AgentID),
			)
			return rec.AgentID, nil
		}
	}

	// Fallback 2: globally least-busy agent.
	least := records[0]
	for _, rec := range records[1:] {
		if rec.CurrentTasks < least.CurrentTasks {
			least = rec
		}
	}
	s.logger.Debug("No idle agent, using least busy",
		zap.String("category", taskCategory),
		zap.String("agent_id", least.AgentID),
	)
	return least.AgentID, nil
}
