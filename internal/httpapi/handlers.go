package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/orchestrator"
	"github.com/finclick-ai/orchestrator/internal/workflows"
)

// Handler serves the orchestration HTTP surface.
type Handler struct {
	supervisor *orchestrator.Supervisor
	logger     *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(sup *orchestrator.Supervisor, logger *zap.Logger) *Handler {
	return &Handler{supervisor: sup, logger: logger}
}

// RegisterRoutes registers API routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/workflows", h.handleExecute)
	mux.HandleFunc("/api/v1/status", h.handleStatus)
	mux.HandleFunc("/healthz", h.handleHealthz)
}

type executeRequest struct {
	WorkflowType   string         `json:"workflow_type"`
	Input          map[string]any `json:"input"`
	Priority       int            `json:"priority"`
	TimeoutMinutes int            `json:"timeout_minutes"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

// handleExecute runs a workflow synchronously.
// POST /api/v1/workflows
func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	kind, err := workflows.ParseKind(req.WorkflowType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.TimeoutMinutes <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "timeout_minutes must be positive"})
		return
	}

	snap, err := h.supervisor.ExecuteWorkflow(r.Context(), kind, req.Input, req.Priority, req.TimeoutMinutes)
	if err != nil {
		var timeoutErr *orchestrator.TimeoutError
		if errors.As(err, &timeoutErr) {
			writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error(), Status: snap.Status.String()})
			return
		}
		if errors.Is(err, orchestrator.ErrUnknownWorkflowKind) || errors.Is(err, orchestrator.ErrInvalidTimeout) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Status: snap.Status.String()})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleStatus reports orchestrator-wide status.
// GET /api/v1/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.supervisor.SystemStatus())
}

// handleHealthz is a liveness probe that degrades with the agent pool.
// GET /healthz
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := h.supervisor.SystemStatus()
	code := http.StatusOK
	if status.SystemHealth == "poor" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"health": status.SystemHealth})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
