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
	"github.com/typeflow/typeflow/internal/validation"
	"github.com/typeflow/typeflow/internal/workflow"
)

// WebhookSyncer keeps the webhook table in sync with a workflow's webhook
// trigger nodes whenever its definition changes.
type WebhookSyncer interface {
	SyncWorkflowWebhooks(ctx context.Context, organizationID, workflowID string, webhookNodes []workflow.WebhookNodeConfig) error
}

// WorkflowHandler implements the workflow CRUD and trigger surface of // RPC shape (workflows.{list,create,update,delete}, execution.trigger).
type WorkflowHandler struct {
	service *workflow.Service
	webhooks WebhookSyncer
	logger *slog.Logger
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(service *workflow.Service, webhooks WebhookSyncer, logger *slog.Logger) *WorkflowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowHandler{service: service, webhooks: webhooks, logger: logger}
}

func organizationID(r *http.Request) string { return chi.URLParam(r, "organizationId") }

// List returns a paginated list of workflows.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := validation.ParsePaginationLimit(r.URL.Query().Get("limit"), 20, 100)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	workflows, err := h.service.List(r.Context(), organizationID(r), limit, offset)
	if err != nil {
		response.InternalError(w, h.logger, "failed to list workflows")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": workflows, "limit": limit, "offset": offset})
}

// Create creates a new workflow and syncs any webhook trigger nodes it declares.
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input workflow.CreateWorkflowInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	wf, err := h.service.Create(r.Context(), organizationID(r), input)
	if err != nil {
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		response.InternalError(w, h.logger, "failed to create workflow")
		return
	}

	h.syncWebhooks(r.Context(), wf)
	response.Created(w, h.logger, map[string]any{"data": wf})
}

// Get retrieves a single workflow by id.
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	wf, err := h.service.GetByID(r.Context(), organizationID(r), chi.URLParam(r, "workflowId"))
	if err != nil {
		if err == workflow.ErrNotFound {
			response.NotFound(w, h.logger, "workflow not found")
			return
		}
		response.InternalError(w, h.logger, "failed to get workflow")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": wf})
}

// Update applies a partial update and re-syncs webhook trigger nodes if the
// definition changed.
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowId")

	var input workflow.UpdateWorkflowInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	wf, err := h.service.Update(r.Context(), organizationID(r), workflowID, input)
	if err != nil {
		if err == workflow.ErrNotFound {
			response.NotFound(w, h.logger, "workflow not found")
			return
		}
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		response.InternalError(w, h.logger, "failed to update workflow")
		return
	}

	if input.Definition != nil {
		h.syncWebhooks(r.Context(), wf)
	}
	response.OK(w, h.logger, map[string]any{"data": wf})
}

// Delete removes a workflow.
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), organizationID(r), chi.URLParam(r, "workflowId"))
	if err != nil {
		if err == workflow.ErrNotFound {
			response.NotFound(w, h.logger, "workflow not found")
			return
		}
		response.InternalError(w, h.logger, "failed to delete workflow")
		return
	}
	response.NoContent(w)
}

// Execute triggers a manual execution of a workflow (execution.trigger).
func (h *WorkflowHandler) Execute(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowId")

	var triggerData json.RawMessage
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&triggerData)
	}

	result, err := h.service.Trigger(r.Context(), organizationID(r), workflowID, "manual", triggerData)
	if err != nil {
		if err == workflow.ErrNotFound {
			response.NotFound(w, h.logger, "workflow not found")
			return
		}
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		response.InternalError(w, h.logger, "failed to execute workflow")
		return
	}

	if result.Queued {
		response.JSON(w, h.logger, http.StatusAccepted, map[string]any{"jobId": result.JobID, "status": "queued"})
		return
	}
	response.JSON(w, h.logger, http.StatusAccepted, map[string]any{"data": result.Execution})
}

// ListExecutions returns executions for a workflow.
func (h *WorkflowHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflowId")
	limit, _ := validation.ParsePaginationLimit(r.URL.Query().Get("limit"), 20, 100)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	executions, err := h.service.ListExecutions(r.Context(), organizationID(r), workflowID, limit, offset)
	if err != nil {
		response.InternalError(w, h.logger, "failed to list executions")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": executions, "limit": limit, "offset": offset})
}

// GetExecution retrieves a single execution.
func (h *WorkflowHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	execution, err := h.service.GetExecutionByID(r.Context(), organizationID(r), chi.URLParam(r, "executionId"))
	if err != nil {
		if err == workflow.ErrNotFound {
			response.NotFound(w, h.logger, "execution not found")
			return
		}
		response.InternalError(w, h.logger, "failed to get execution")
		return
	}
	response.OK(w, h.logger, map[string]any{"data": execution})
}

func (h *WorkflowHandler) syncWebhooks(ctx context.Context, wf *workflow.Workflow) {
	if h.webhooks == nil {
		return
	}
	if err := h.webhooks.SyncWorkflowWebhooks(ctx, wf.OrganizationID, wf.ID, wf.Definition.WebhookNodeConfigs()); err != nil {
		h.logger.Error("failed to sync workflow webhooks", "error", err, "workflow_id", wf.ID)
	}
}
