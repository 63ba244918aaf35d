package webhook

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/typeflow/typeflow/internal/workflow"
)

// Service handles webhook business logic.
type Service struct {
	repo *Repository
	logger *slog.Logger
}

// NewService creates a new webhook service.
func NewService(repo *Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// GenerateSecret generates a secure random secret for api_key/basic auth.
func (s *Service) GenerateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

// Create creates a new webhook, generating a secret for auth types that
// require one.
func (s *Service) Create(ctx context.Context, tenantID, workflowID, nodeID, authType string) (*Webhook, error) {
	secret := ""
	if authType != AuthTypeNone {
		var err error
		secret, err = s.GenerateSecret()
		if err != nil {
			return nil, err
		}
	}

	webhook, err := s.repo.Create(ctx, tenantID, workflowID, nodeID, secret, authType)
	if err != nil {
		s.logger.Error("failed to create webhook", "error", err, "workflow_id", workflowID)
		return nil, err
	}

	s.logger.Info("webhook created", "webhook_id", webhook.ID, "workflow_id", workflowID)
	return webhook, nil
}

// GetByWorkflowAndWebhookID retrieves a webhook by workflow and webhook IDs.
func (s *Service) GetByWorkflowAndWebhookID(ctx context.Context, workflowID, webhookID string) (*Webhook, error) {
	return s.repo.GetByWorkflowAndWebhookID(ctx, workflowID, webhookID)
}

// GetByOrganizationAndPath resolves the active webhook for an inbound
// request, the first step of the ingress pipeline.
func (s *Service) GetByOrganizationAndPath(ctx context.Context, organizationID, path string) (*Webhook, error) {
	return s.repo.GetByOrganizationAndPath(ctx, organizationID, path)
}

// GetByWorkflowID retrieves all webhooks for a workflow as workflow.WebhookInfo.
func (s *Service) GetByWorkflowID(ctx context.Context, workflowID string) ([]*workflow.WebhookInfo, error) {
	webhooks, err := s.repo.GetByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	result := make([]*workflow.WebhookInfo, len(webhooks))
	for i, wh := range webhooks {
		result[i] = &workflow.WebhookInfo{
			ID: wh.ID,
			NodeID: wh.NodeID,
			WebhookURL: wh.WebhookURL(),
			AuthType: wh.AuthType,
			Secret: wh.Secret,
		}
	}

	return result, nil
}

// Delete deletes a webhook.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete webhook", "error", err, "webhook_id", id)
		return err
	}
	s.logger.Info("webhook deleted", "webhook_id", id)
	return nil
}

// DeleteByWorkflowID deletes all webhooks for a workflow.
func (s *Service) DeleteByWorkflowID(ctx context.Context, workflowID string) error {
	if err := s.repo.DeleteByWorkflowID(ctx, workflowID); err != nil {
		s.logger.Error("failed to delete webhooks", "error", err, "workflow_id", workflowID)
		return err
	}
	s.logger.Info("webhooks deleted for workflow", "workflow_id", workflowID)
	return nil
}

// SyncWorkflowWebhooks syncs webhooks for a workflow based on its
// definition. Called when a workflow is created or updated.
func (s *Service) SyncWorkflowWebhooks(ctx context.Context, tenantID, workflowID string, webhookNodes []workflow.WebhookNodeConfig) error {
	existing, err := s.repo.GetByWorkflowID(ctx, workflowID)
	if err != nil {
		return err
	}

	existingMap := make(map[string]*Webhook)
	for _, wh := range existing {
		existingMap[wh.NodeID] = wh
	}

	shouldExist := make(map[string]bool)

	for _, nodeConfig := range webhookNodes {
		shouldExist[nodeConfig.NodeID] = true

		if _, exists := existingMap[nodeConfig.NodeID]; !exists {
			authType := nodeConfig.AuthType
			if authType == "" {
				authType = AuthTypeNone
			}

			if _, err := s.Create(ctx, tenantID, workflowID, nodeConfig.NodeID, authType); err != nil {
				s.logger.Error("failed to create webhook during sync", "error", err, "node_id", nodeConfig.NodeID)
				return err
			}
		}
	}

	for nodeID, webhook := range existingMap {
		if !shouldExist[nodeID] {
			if err := s.repo.Delete(ctx, webhook.ID); err != nil {
				s.logger.Error("failed to delete orphaned webhook", "error", err, "webhook_id", webhook.ID)
			}
		}
	}

	return nil
}

// List retrieves all webhooks for a tenant with pagination.
func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) ([]*Webhook, int, error) {
	webhooks, total, err := s.repo.List(ctx, tenantID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list webhooks", "error", err, "tenant_id", tenantID)
		return nil, 0, err
	}
	return webhooks, total, nil
}

// GetByID retrieves a webhook by ID with tenant isolation.
func (s *Service) GetByID(ctx context.Context, tenantID, webhookID string) (*Webhook, error) {
	webhook, err := s.repo.GetByIDAndTenant(ctx, webhookID, tenantID)
	if err != nil {
		s.logger.Error("failed to get webhook", "error", err, "webhook_id", webhookID)
		return nil, err
	}
	return webhook, nil
}

// Update updates a webhook.
func (s *Service) Update(ctx context.Context, tenantID, webhookID, name, authType, description string, priority int, enabled bool) (*Webhook, error) {
	if _, err := s.repo.GetByIDAndTenant(ctx, webhookID, tenantID); err != nil {
		return nil, err
	}

	webhook, err := s.repo.Update(ctx, webhookID, name, authType, description, priority, enabled)
	if err != nil {
		s.logger.Error("failed to update webhook", "error", err, "webhook_id", webhookID)
		return nil, err
	}

	s.logger.Info("webhook updated", "webhook_id", webhookID)
	return webhook, nil
}

// DeleteByID deletes a webhook with tenant isolation.
func (s *Service) DeleteByID(ctx context.Context, tenantID, webhookID string) error {
	if _, err := s.repo.GetByIDAndTenant(ctx, webhookID, tenantID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, webhookID); err != nil {
		s.logger.Error("failed to delete webhook", "error", err, "webhook_id", webhookID)
		return err
	}

	s.logger.Info("webhook deleted", "webhook_id", webhookID)
	return nil
}

// RegenerateSecret regenerates the secret for a webhook.
func (s *Service) RegenerateSecret(ctx context.Context, tenantID, webhookID string) (*Webhook, error) {
	if _, err := s.repo.GetByIDAndTenant(ctx, webhookID, tenantID); err != nil {
		return nil, err
	}

	secret, err := s.GenerateSecret()
	if err != nil {
		return nil, err
	}

	webhook, err := s.repo.UpdateSecret(ctx, webhookID, secret)
	if err != nil {
		s.logger.Error("failed to regenerate secret", "error", err, "webhook_id", webhookID)
		return nil, err
	}

	s.logger.Info("webhook secret regenerated", "webhook_id", webhookID)
	return webhook, nil
}

// Authenticate validates an inbound request against the webhook's configured
// auth type (closed set: none, api_key, bearer, basic). query carries
// the parsed query string so api_key can fall back to a query parameter.
func (s *Service) Authenticate(w *Webhook, headers map[string]string, query map[string][]string) bool {
	switch w.AuthType {
	case AuthTypeNone, "":
		return true
	case AuthTypeAPIKey:
		if w.Secret == "" {
			return true
		}
		key := headerValue(headers, "X-API-Key")
		if key == "" {
			key = queryValue(query, "api_key")
		}
		if key == "" {
			key = queryValue(query, "apiKey")
		}
		return constantTimeEqual(key, w.Secret)
	case AuthTypeBearer:
		auth := headerValue(headers, "Authorization")
		const prefix = "bearer "
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			return false
		}
		return constantTimeEqual(auth[len(prefix):], w.Secret)
	case AuthTypeBasic:
		auth := headerValue(headers, "Authorization")
		const prefix = "Basic "
		if !strings.HasPrefix(auth, prefix) {
			return false
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, prefix))
		if err != nil {
			return false
		}
		return constantTimeEqual(string(decoded), w.Secret)
	default:
		return false
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func queryValue(query map[string][]string, key string) string {
	if vs, ok := query[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// LogEvent logs a webhook event to the database.
func (s *Service) LogEvent(ctx context.Context, event *WebhookEvent) error {
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		s.logger.Error("failed to log webhook event", "error", err, "webhook_id", event.WebhookID, "status", event.Status)
		return fmt.Errorf("failed to log webhook event: %w", err)
	}

	s.logger.Debug("webhook event logged", "event_id", event.ID, "webhook_id", event.WebhookID, "status", event.Status)
	return nil
}

// GetEvents retrieves webhook events with pagination.
func (s *Service) GetEvents(ctx context.Context, tenantID, webhookID string, limit, offset int) ([]*WebhookEvent, int, error) {
	filter := WebhookEventFilter{
		WebhookID: webhookID,
		Limit: limit,
		Offset: offset,
	}

	events, total, err := s.repo.ListEvents(ctx, tenantID, filter)
	if err != nil {
		s.logger.Error("failed to get webhook events", "error", err, "webhook_id", webhookID)
		return nil, 0, fmt.Errorf("failed to get webhook events: %w", err)
	}

	return events, total, nil
}

// MarkEventProcessed marks a webhook event as processed and records the
// execution it produced.
func (s *Service) MarkEventProcessed(ctx context.Context, eventID, executionID string, processingTimeMs int) error {
	if err := s.repo.UpdateEventStatus(ctx, eventID, EventStatusProcessed, nil); err != nil {
		s.logger.Error("failed to mark event as processed", "error", err, "event_id", eventID)
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	query := `UPDATE webhook_events SET execution_id = $2, processing_time_ms = $3 WHERE id = $1`
	if _, err := s.repo.db.ExecContext(ctx, query, eventID, executionID, processingTimeMs); err != nil {
		s.logger.Error("failed to update event execution details", "error", err, "event_id", eventID)
		return fmt.Errorf("failed to update event execution details: %w", err)
	}

	s.logger.Info("webhook event marked as processed", "event_id", eventID, "execution_id", executionID, "processing_time_ms", processingTimeMs)
	return nil
}

// MarkEventFailed marks a webhook event as failed.
func (s *Service) MarkEventFailed(ctx context.Context, eventID string, errorMsg string) error {
	if err := s.repo.UpdateEventStatus(ctx, eventID, EventStatusFailed, &errorMsg); err != nil {
		s.logger.Error("failed to mark event as failed", "error", err, "event_id", eventID)
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	s.logger.Info("webhook event marked as failed", "event_id", eventID, "error", errorMsg)
	return nil
}

// MarkEventFiltered marks a webhook event as rejected before reaching the
// executor (inactive webhook, rate limit, auth failure, method mismatch).
func (s *Service) MarkEventFiltered(ctx context.Context, eventID string, reason string) error {
	if err := s.repo.UpdateEventStatus(ctx, eventID, EventStatusFiltered, nil); err != nil {
		s.logger.Error("failed to mark event as filtered", "error", err, "event_id", eventID)
		return fmt.Errorf("failed to mark event as filtered: %w", err)
	}

	query := `UPDATE webhook_events SET filtered_reason = $2 WHERE id = $1`
	if _, err := s.repo.db.ExecContext(ctx, query, eventID, reason); err != nil {
		s.logger.Error("failed to update filtered reason", "error", err, "event_id", eventID)
		return fmt.Errorf("failed to update filtered reason: %w", err)
	}

	s.logger.Info("webhook event marked as filtered", "event_id", eventID, "reason", reason)
	return nil
}
