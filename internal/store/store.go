package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/workflows"
)

// ErrNotFound is returned when a workflow record does not exist.
var ErrNotFound = errors.New("workflow record not found")

// WorkflowRecord is one persisted terminal workflow. This is the
// history callers query once execution has returned.
type WorkflowRecord struct {
	WorkflowID  string         `db:"workflow_id" json:"workflow_id"`
	Kind        string         `db:"workflow_type" json:"workflow_type"`
	Status      string         `db:"status" json:"status"`
	CurrentStep int            `db:"current_step" json:"current_step"`
	FinalResult []byte         `db:"final_result" json:"-"`
	Error       sql.NullString `db:"error" json:"-"`
	StartedAt   time.Time      `db:"started_at" json:"started_at"`
	CompletedAt time.Time      `db:"completed_at" json:"completed_at"`
	DurationMS  int64          `db:"duration_ms" json:"duration_ms"`
}

// Store persists workflow records in Postgres.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New connects to Postgres using the given DSN.
func New(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing connection; used by tests with sqlmock.
func NewWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// SaveWorkflow inserts one terminal workflow snapshot.
func (s *Store) SaveWorkflow(ctx context.Context, snap workflows.Snapshot) error {
	finalJSON, err := json.Marshal(snap.FinalResult)
	if err != nil {
		return fmt.Errorf("marshal final result: %w", err)
	}

	const q = `
		INSERT INTO workflow_history
			(workflow_id, workflow_type, status, current_step, final_result, error, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, q,
		snap.WorkflowID,
		string(snap.WorkflowType),
		snap.Status.String(),
		snap.CurrentStep,
		finalJSON,
		nullString(snap.Error),
		snap.StartedAt,
		snap.CompletedAt,
		snap.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert workflow record: %w", err)
	}
	return nil
}

// GetWorkflow fetches one persisted record by id.
func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (*WorkflowRecord, error) {
	const q = `
		SELECT workflow_id, workflow_type, status, current_step, final_result, error, started_at, completed_at, duration_ms
		FROM workflow_history
		WHERE workflow_id = $1`

	var rec WorkflowRecord
	if err := s.db.GetContext(ctx, &rec, q, workflowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("get workflow record: %w", err)
	}
	return &rec, nil
}

// ListRecent returns the most recently completed workflows.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]WorkflowRecord, error) {
	const q = `
		SELECT workflow_id, workflow_type, status, current_step, final_result, error, started_at, completed_at, duration_ms
		FROM workflow_history
		ORDER BY completed_at DESC
		LIMIT $1`

	var recs []WorkflowRecord
	if err := s.db.SelectContext(ctx, &recs, q, limit); err != nil {
		return nil, fmt.Errorf("list workflow records: %w", err)
	}
	return recs, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
