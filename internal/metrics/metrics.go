package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finclick_workflows_started_total",
			Help: "Total number of workflows started",
		},
		[]string{"workflow_type"},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finclick_workflows_completed_total",
			Help: "Total number of workflows completed",
		},
		[]string{"workflow_type", "status"},
	)

	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finclick_workflow_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"workflow_type"},
	)

	ActiveWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "finclick_workflows_active",
			Help: "Number of workflows currently executing",
		},
	)

	// Agent metrics
	AgentsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "finclick_agents_registered",
			Help: "Number of agents currently registered",
		},
	)

	AgentTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finclick_agent_tasks_total",
			Help: "Total number of tasks dispatched to agents",
		},
		[]string{"agent_id", "status"},
	)

	AgentTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finclick_agent_task_duration_ms",
			Help:    "Agent task execution duration in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000},
		},
		[]string{"agent_id"},
	)

	// Broker metrics
	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finclick_broker_messages_delivered_total",
			Help: "Total number of messages delivered to agents",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finclick_broker_messages_dropped_total",
			Help: "Total number of messages dropped by the broker",
		},
		[]string{"reason"},
	)

	BrokerHistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "finclick_broker_history_size",
			Help: "Current number of messages in the delivered-history buffer",
		},
	)
)

// RecordWorkflowMetrics records metrics for a completed workflow.
func RecordWorkflowMetrics(workflowType, status string, durationSeconds float64) {
	WorkflowsCompleted.WithLabelValues(workflowType, status).Inc()
	WorkflowDuration.WithLabelValues(workflowType).Observe(durationSeconds)
}

// RecordAgentTask records metrics for one agent task execution.
func RecordAgentTask(agentID, status string, durationMs float64) {
	AgentTasks.WithLabelValues(agentID, status).Inc()
	AgentTaskDuration.WithLabelValues(agentID).Observe(durationMs)
}
