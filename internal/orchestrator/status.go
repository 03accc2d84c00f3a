package orchestrator

import (
	"github.com/finclick-ai/orchestrator/internal/agents"
)

// SystemStatus is a point-in-time report of the whole orchestrator.
type SystemStatus struct {
	TotalAgents        int                 `json:"total_agents"`
	ActiveWorkflows    int                 `json:"active_workflows"`
	AgentsByCategory   map[string]int      `json:"agents_by_category"`
	PerformanceMetrics Stats               `json:"performance_metrics"`
	AgentStatuses      map[string]string   `json:"agent_statuses"`
	SystemHealth       string              `json:"system_health"`
	Utilization        ResourceUtilization `json:"resource_utilization"`
}

// ResourceUtilization summarizes how busy the agent pool is.
type ResourceUtilization struct {
	AgentUtilization   float64 `json:"agent_utilization"`
	AverageQueueLength float64 `json:"average_queue_length"`
}

// SystemStatus assembles the full status report.
func (s *Supervisor) SystemStatus() SystemStatus {
	statuses := s.registry.Statuses()

	agentStatuses := make(map[string]string, len(statuses))
	healthy, busy := 0, 0
	for id, st := range statuses {
		agentStatuses[id] = st.String()
		if st != agents.StatusError {
			healthy++
		}
		if st == agents.StatusWorking {
			busy++
		}
	}

	byCategory := make(map[string]int)
	for cat, n := range s.registry.CategoryCounts() {
		byCategory[string(cat)] = n
	}

	total := len(statuses)
	utilization := 0.0
	if total > 0 {
		utilization = float64(busy) / float64(total)
	}

	return SystemStatus{
		TotalAgents:        total,
		ActiveWorkflows:    s.ActiveCount(),
		AgentsByCategory:   byCategory,
		PerformanceMetrics: s.StatsSnapshot(),
		AgentStatuses:      agentStatuses,
		SystemHealth:       healthGrade(healthy, total),
		Utilization: ResourceUtilization{
			AgentUtilization:   utilization,
			AverageQueueLength: s.tracker.AverageQueueLength(),
		},
	}
}

// healthGrade maps the healthy-agent ratio onto a coarse grade.
func healthGrade(healthy, total int) string {
	if total == 0 {
		return "poor"
	}
	ratio := float64(healthy) / float64(total)
	switch {
	case ratio >= 0.9:
		return "excellent"
	case ratio >= 0.7:
		return "good"
	case ratio >= 0.5:
		return "fair"
	default:
		return "poor"
	}
}
