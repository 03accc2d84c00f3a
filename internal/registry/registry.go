package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/metrics"
)

var (
	// ErrAlreadyRegistered is returned when an agent id is registered twice.
	ErrAlreadyRegistered = errors.New("agent already registered")
	// ErrAgentNotFound is returned when an agent id is unknown.
	ErrAgentNotFound = errors.New("agent not found")
)

type entry struct {
	desc agents.Descriptor
	exec agents.Executor
}

// Registry holds registered agents indexed by id and by category. It is
// shared mutable state across concurrent workflow executions and is
// internally synchronized.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]entry
	byCategory map[agents.Category][]string
	logger     *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		agents:     make(map[string]entry),
		byCategory: make(map[agents.Category][]string),
		logger:     logger,
	}
}

// Register stores an agent under its unique id and indexes it by
// category. Re-registering an existing id is an error, not a silent
// overwrite.
func (r *Registry) Register(desc agents.Descriptor, exec agents.Executor) error {
	if desc.ID == "" {
		return fmt.Errorf("register agent: empty id")
	}
	if exec == nil {
		return fmt.Errorf("register agent %s: nil executor", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[desc.ID]; ok {
		return fmt.Errorf("register agent %s: %w", desc.ID, ErrAlreadyRegistered)
	}

	r.agents[desc.ID] = entry{desc: desc, exec: exec}
	r.byCategory[desc.Category] = append(r.byCategory[desc.Category], desc.ID)
	sort.Strings(r.byCategory[desc.Category])
	metrics.AgentsRegistered.Set(float64(len(r.agents)))

	r.logger.Debug("Registered agent",
		zap.String("agent_id", desc.ID),
		zap.String("category", string(desc.Category)),
	)
	return nil
}

// Deregister removes an agent and its category index entry.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("deregister agent %s: %w", id, ErrAgentNotFound)
	}
	delete(r.agents, id)

	ids := r.byCategory[e.desc.Category]
	for i, aid := range ids {
		if aid == id {
			r.byCategory[e.desc.Category] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	metrics.AgentsRegistered.Set(float64(len(r.agents)))

	r.logger.Debug("Deregistered agent", zap.String("agent_id", id))
	return nil
}

// Get returns the descriptor and executor for an agent id.
func (r *Registry) Get(id string) (agents.Descriptor, agents.Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.agents[id]
	if !ok {
		return agents.Descriptor{}, nil, fmt.Errorf("agent %s: %w", id, ErrAgentNotFound)
	}
	return e.desc, e.exec, nil
}

// ByCategory returns the sorted ids of agents in a category.
func (r *Registry) ByCategory(category agents.Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.byCategory[category]))
	copy(ids, r.byCategory[category])
	return ids
}

// List returns all registered descriptors, sorted by agent id.
func (r *Registry) List() []agents.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]agents.Descriptor, 0, len(r.agents))
	for _, e := range r.agents {
		descs = append(descs, e.desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })
	return descs
}

// Statuses returns the live status of every registered agent.
func (r *Registry) Statuses() map[string]agents.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]agents.Status, len(r.agents))
	for id, e := range r.agents {
		out[id] = e.exec.Status()
	}
	return out
}

// CategoryCounts returns the number of agents per category.
func (r *Registry) CategoryCounts() map[agents.Category]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[agents.Category]int, len(r.byCategory))
	for cat, ids := range r.byCategory {
		if len(ids) > 0 {
			out[cat] = len(ids)
		}
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
