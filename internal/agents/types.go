package agents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category enumerates the closed set of worker kinds the platform knows about.
type Category string

const (
	CategoryDataExtraction    Category = "data_extraction"
	CategoryFinancialAnalysis Category = "financial_analysis"
	CategoryRiskAssessment    Category = "risk_assessment"
	CategoryMarketAnalysis    Category = "market_analysis"
	CategoryReportGeneration  Category = "report_generation"
	CategoryRecommendation    Category = "recommendation"
	CategoryValidation        Category = "validation"
)

// Categories returns every known agent category.
func Categories() []Category {
	return []Category{
		CategoryDataExtraction,
		CategoryFinancialAnalysis,
		CategoryRiskAssessment,
		CategoryMarketAnalysis,
		CategoryReportGeneration,
		CategoryRecommendation,
		CategoryValidation,
	}
}

// Status is an agent's lifecycle status.
type Status int

const (
	StatusIdle Status = iota
	StatusWorking
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWorking:
		return "working"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Descriptor identifies an agent and its declared abilities. The
// orchestration core never inspects workers beyond this descriptor and
// the Executor contract.
type Descriptor struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        Category `json:"category"`
	Capabilities    []string `json:"capabilities"`
	Specializations []string `json:"specializations"`
}

// Task is one unit of work dispatched to a single agent. It is created
// per workflow step, consumed exactly once, then discarded.
type Task struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Input        map[string]any `json:"input"`
	Requirements []string       `json:"requirements"`
	Priority     int            `json:"priority"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewTask builds a task with a fresh id.
func NewTask(taskType string, input map[string]any, requirements []string, priority int) Task {
	return Task{
		ID:           uuid.New().String(),
		Type:         taskType,
		Input:        input,
		Requirements: requirements,
		Priority:     priority,
		CreatedAt:    time.Now(),
	}
}

// Result is the opaque structured output of one task execution.
type Result map[string]any

// Executor is the single capability contract the core consumes from
// every registered worker. Concrete analysis engines, document
// services, report renderers and market-data clients all sit behind
// it and are substitutable by test doubles.
type Executor interface {
	ExecuteTask(ctx context.Context, task Task) (Result, error)
	Status() Status
}

// MessageKind classifies broker messages.
type MessageKind string

const (
	MessageInfo     MessageKind = "info"
	MessageRequest  MessageKind = "request"
	MessageResponse MessageKind = "response"
	MessageError    MessageKind = "error"
)

// Message is a point-to-point message between agents, ferried by the
// broker outside any workflow graph.
type Message struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"sender_id"`
	ReceiverID string         `json:"receiver_id"`
	Kind       MessageKind    `json:"kind"`
	Content    map[string]any `json:"content"`
	ResponseTo string         `json:"response_to,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(sender, receiver string, kind MessageKind, content map[string]any) Message {
	return Message{
		ID:         uuid.New().String(),
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       kind,
		Content:    content,
		Timestamp:  time.Now(),
	}
}

// Handler receives broker messages. A non-nil reply is re-enqueued by
// the broker, supporting request/reply chains without blocking the
// sender.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) (*Message, error)
}
