package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/typeflow/typeflow/internal/api/response"
	"github.com/typeflow/typeflow/internal/webhook"
)

// WebhookManagementHandler implements the admin/RPC surface over webhook
// configuration: webhooks.{list,create,update,delete,getLatestRequest},
// scoped by organizationId taken from the URL path.
type WebhookManagementHandler struct {
	service WebhookManagementService
	logger *slog.Logger
	validate *validator.Validate
}

// WebhookManagementService is the slice of webhook.Service the admin
// surface needs.
type WebhookManagementService interface {
	List(ctx context.Context, organizationID string, limit, offset int) ([]*webhook.Webhook, int, error)
	GetByID(ctx context.Context, organizationID, webhookID string) (*webhook.Webhook, error)
	Create(ctx context.Context, organizationID, workflowID, nodeID, authType string) (*webhook.Webhook, error)
	Update(ctx context.Context, organizationID, webhookID, name, authType, description string, priority int, enabled bool) (*webhook.Webhook, error)
	DeleteByID(ctx context.Context, organizationID, webhookID string) error
	RegenerateSecret(ctx context.Context, organizationID, webhookID string) (*webhook.Webhook, error)
	GetEvents(ctx context.Context, organizationID, webhookID string, limit, offset int) ([]*webhook.WebhookEvent, int, error)
}

// NewWebhookManagementHandler creates a new webhook management handler.
func NewWebhookManagementHandler(service WebhookManagementService, logger *slog.Logger) *WebhookManagementHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookManagementHandler{
		service: service,
		logger: logger,
		validate: validator.New(),
	}
}

// CreateWebhookRequest represents the request to attach a webhook trigger
// to an existing workflow node.
type CreateWebhookRequest struct {
	WorkflowID string `json:"workflowId" validate:"required"`
	NodeID string `json:"nodeId" validate:"required"`
	AuthType string `json:"authType" validate:"omitempty,oneof=none api_key bearer basic"`
}

// UpdateWebhookRequest represents the request to update a webhook.
type UpdateWebhookRequest struct {
	Name string `json:"name"`
	AuthType string `json:"authType" validate:"omitempty,oneof=none api_key bearer basic"`
	Description string `json:"description"`
	Priority int `json:"priority" validate:"min=0,max=3"`
	Enabled bool `json:"enabled"`
}

func organizationIDParam(r *http.Request) string {
	return chi.URLParam(r, "organizationId")
}

// List returns all webhooks for the organization.
func (h *WebhookManagementHandler) List(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	webhooks, total, err := h.service.List(r.Context(), organizationID, limit, offset)
	if err != nil {
		response.InternalError(w, h.logger, "failed to list webhooks")
		return
	}

	response.Paginated(w, h.logger, webhooks, limit, offset, total)
}

// Get retrieves a single webhook.
func (h *WebhookManagementHandler) Get(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)
	webhookID := chi.URLParam(r, "id")

	wh, err := h.service.GetByID(r.Context(), organizationID, webhookID)
	if err != nil {
		if err == webhook.ErrNotFound {
			response.NotFound(w, h.logger, "webhook not found")
			return
		}
		response.InternalError(w, h.logger, "failed to get webhook")
		return
	}

	response.OK(w, h.logger, wh)
}

// Create attaches a webhook trigger to a workflow node.
func (h *WebhookManagementHandler) Create(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)

	var input CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		response.BadRequest(w, h.logger, err.Error())
		return
	}
	authType := input.AuthType
	if authType == "" {
		authType = webhook.AuthTypeNone
	}

	wh, err := h.service.Create(r.Context(), organizationID, input.WorkflowID, input.NodeID, authType)
	if err != nil {
		h.logger.Error("failed to create webhook", "error", err)
		response.InternalError(w, h.logger, "failed to create webhook")
		return
	}

	response.Created(w, h.logger, wh)
}

// Update updates a webhook's configuration.
func (h *WebhookManagementHandler) Update(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)
	webhookID := chi.URLParam(r, "id")

	var input UpdateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		response.BadRequest(w, h.logger, err.Error())
		return
	}

	wh, err := h.service.Update(r.Context(), organizationID, webhookID, input.Name, input.AuthType, input.Description, input.Priority, input.Enabled)
	if err != nil {
		if err == webhook.ErrNotFound {
			response.NotFound(w, h.logger, "webhook not found")
			return
		}
		response.InternalError(w, h.logger, "failed to update webhook")
		return
	}

	response.OK(w, h.logger, wh)
}

// Delete deletes a webhook.
func (h *WebhookManagementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)
	webhookID := chi.URLParam(r, "id")

	if err := h.service.DeleteByID(r.Context(), organizationID, webhookID); err != nil {
		if err == webhook.ErrNotFound {
			response.NotFound(w, h.logger, "webhook not found")
			return
		}
		response.InternalError(w, h.logger, "failed to delete webhook")
		return
	}

	response.NoContent(w)
}

// RegenerateSecret regenerates the webhook's auth secret.
func (h *WebhookManagementHandler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)
	webhookID := chi.URLParam(r, "id")

	wh, err := h.service.RegenerateSecret(r.Context(), organizationID, webhookID)
	if err != nil {
		if err == webhook.ErrNotFound {
			response.NotFound(w, h.logger, "webhook not found")
			return
		}
		response.InternalError(w, h.logger, "failed to regenerate secret")
		return
	}

	response.OK(w, h.logger, wh)
}

// GetLatestRequest returns the most recently received event for a webhook,
// the `webhooks.getLatestRequest` RPC operation.
func (h *WebhookManagementHandler) GetLatestRequest(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)
	webhookID := chi.URLParam(r, "id")

	events, _, err := h.service.GetEvents(r.Context(), organizationID, webhookID, 1, 0)
	if err != nil {
		response.InternalError(w, h.logger, "failed to get webhook events")
		return
	}
	if len(events) == 0 {
		response.NotFound(w, h.logger, "no requests recorded for this webhook")
		return
	}

	response.OK(w, h.logger, events[0])
}

// GetEventHistory retrieves webhook event history.
func (h *WebhookManagementHandler) GetEventHistory(w http.ResponseWriter, r *http.Request) {
	organizationID := organizationIDParam(r)
	webhookID := chi.URLParam(r, "id")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	events, total, err := h.service.GetEvents(r.Context(), organizationID, webhookID, limit, offset)
	if err != nil {
		response.InternalError(w, h.logger, "failed to get event history")
		return
	}

	response.Paginated(w, h.logger, events, limit, offset, total)
}
