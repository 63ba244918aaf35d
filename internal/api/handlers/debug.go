package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/typeflow/typeflow/internal/api/response"
	"github.com/typeflow/typeflow/internal/apperrors"
	"github.com/typeflow/typeflow/internal/workflow"
)

// DebugService is the slice of debug.Service the handler needs.
type DebugService interface {
	Create(ctx context.Context, organizationID, workflowID string, breakpoints []string, triggerData json.RawMessage) (*workflow.DebugSession, error)
	Start(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error)
	Continue(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error)
	StepOver(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error)
	Terminate(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error)
	GetState(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error)
	ToggleBreakpoint(ctx context.Context, organizationID, workflowID, nodeID string, enabled bool) ([]string, error)
}

// DebugHandler implements the debug controller's RPC surface:
// debug.{createSession,start,stepOver,continue,terminate,getState,
// toggleBreakpoint}.
type DebugHandler struct {
	service DebugService
	logger *slog.Logger
}

// NewDebugHandler creates a new debug handler.
func NewDebugHandler(service DebugService, logger *slog.Logger) *DebugHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebugHandler{service: service, logger: logger}
}

type createSessionRequest struct {
	WorkflowID string `json:"workflowId"`
	Breakpoints []string `json:"breakpoints"`
	TriggerData json.RawMessage `json:"triggerData"`
}

// CreateSession starts a new debug session.
func (h *DebugHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}
	if req.WorkflowID == "" {
		response.BadRequest(w, h.logger, "workflowId is required")
		return
	}

	session, err := h.service.Create(r.Context(), organizationID(r), req.WorkflowID, req.Breakpoints, req.TriggerData)
	if err != nil {
		h.handleError(w, err, "failed to create debug session")
		return
	}
	response.Created(w, h.logger, map[string]any{"data": session})
}

// Start runs a session until its first breakpoint, completion, or failure.
func (h *DebugHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Start(r.Context(), organizationID(r), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.handleError(w, err, "failed to start debug session")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": session})
}

// Continue resumes a paused session.
func (h *DebugHandler) Continue(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Continue(r.Context(), organizationID(r), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.handleError(w, err, "failed to continue debug session")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": session})
}

// StepOver executes exactly one node, then pauses.
func (h *DebugHandler) StepOver(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.StepOver(r.Context(), organizationID(r), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.handleError(w, err, "failed to step debug session")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": session})
}

// Terminate ends a session.
func (h *DebugHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Terminate(r.Context(), organizationID(r), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.handleError(w, err, "failed to terminate debug session")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": session})
}

// GetState reads a session's current state.
func (h *DebugHandler) GetState(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetState(r.Context(), organizationID(r), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.handleError(w, err, "failed to get debug session")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": session})
}

type toggleBreakpointRequest struct {
	NodeID string `json:"nodeId"`
	Enabled bool `json:"enabled"`
}

// ToggleBreakpoint idempotently adds or removes a breakpoint on a
// workflow's metadata.
func (h *DebugHandler) ToggleBreakpoint(w http.ResponseWriter, r *http.Request) {
	var req toggleBreakpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}
	if req.NodeID == "" {
		response.BadRequest(w, h.logger, "nodeId is required")
		return
	}

	breakpoints, err := h.service.ToggleBreakpoint(r.Context(), organizationID(r), chi.URLParam(r, "workflowId"), req.NodeID, req.Enabled)
	if err != nil {
		h.handleError(w, err, "failed to toggle breakpoint")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": map[string]any{"breakpoints": breakpoints}})
}

func (h *DebugHandler) handleError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, workflow.ErrNotFound) {
		response.NotFound(w, h.logger, "not found")
		return
	}
	var sessionEnded *apperrors.SessionEndedError
	if errors.As(err, &sessionEnded) {
		response.Conflict(w, h.logger, err.Error())
		return
	}
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		response.BadRequest(w, h.logger, err.Error())
		return
	}
	h.logger.Error(fallback, "error", err)
	response.InternalError(w, h.logger, fallback)
}
