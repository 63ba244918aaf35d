package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/typeflow/typeflow/internal/apperrors"
)

// RunTrigger starts a top-level execution; satisfied by *executor.Executor
// without this package importing executor (which imports workflow).
type RunTrigger interface {
	Run(ctx context.Context, req RunTriggerRequest) (*Execution, error)
}

// RunTriggerRequest mirrors executor.RunRequest's fields so Service can
// build one without importing the executor package.
type RunTriggerRequest struct {
	OrganizationID string
	WorkflowID string
	Trigger string
	TriggerData json.RawMessage
	// WebhookPath carries the originating path for webhook-triggered runs,
	// surfaced to the queue for observability.
	WebhookPath string
}

// QueuePublisher publishes an execution request onto the job queue instead
// of running it inline, returning the job id surfaced to callers
// (e.g. a webhook's 202 response body).
type QueuePublisher interface {
	PublishExecution(ctx context.Context, req RunTriggerRequest) (jobID string, err error)
}

// TriggerResult is the outcome of Service.Trigger: either a job id (queued
// path) or a finished Execution (inline path).
type TriggerResult struct {
	Execution *Execution
	JobID string
	Queued bool
}

// Service holds workflow CRUD and trigger business logic.
type Service struct {
	repo *Repository
	executor RunTrigger
	publisher QueuePublisher
	logger *slog.Logger
}

// NewService creates a new workflow service.
func NewService(repo *Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// SetExecutor wires the graph executor in after construction, avoiding an
// import cycle between workflow and executor.
func (s *Service) SetExecutor(executor RunTrigger) { s.executor = executor }

// SetQueuePublisher enables queue-backed execution instead of
// running inline.
func (s *Service) SetQueuePublisher(publisher QueuePublisher) { s.publisher = publisher }

// Create validates and persists a new workflow at version 1.
func (s *Service) Create(ctx context.Context, organizationID string, input CreateWorkflowInput) (*Workflow, error) {
	wf, err := s.repo.Create(ctx, organizationID, input)
	if err != nil {
		s.logger.Error("failed to create workflow", "error", err, "organization_id", organizationID)
		return nil, err
	}
	s.logger.Info("workflow created", "workflow_id", wf.ID, "organization_id", organizationID)
	return wf, nil
}

// GetByID retrieves a workflow by id.
func (s *Service) GetByID(ctx context.Context, organizationID, id string) (*Workflow, error) {
	return s.repo.GetByID(ctx, organizationID, id)
}

// Update applies a partial update, validating any new definition.
func (s *Service) Update(ctx context.Context, organizationID, id string, input UpdateWorkflowInput) (*Workflow, error) {
	wf, err := s.repo.Update(ctx, organizationID, id, input)
	if err != nil {
		s.logger.Error("failed to update workflow", "error", err, "workflow_id", id)
		return nil, err
	}
	s.logger.Info("workflow updated", "workflow_id", wf.ID, "version", wf.Version)
	return wf, nil
}

// Delete removes a workflow.
func (s *Service) Delete(ctx context.Context, organizationID, id string) error {
	if err := s.repo.Delete(ctx, organizationID, id); err != nil {
		s.logger.Error("failed to delete workflow", "error", err, "workflow_id", id)
		return err
	}
	s.logger.Info("workflow deleted", "workflow_id", id)
	return nil
}

// List retrieves an organization's workflows, paginated.
func (s *Service) List(ctx context.Context, organizationID string, limit, offset int) ([]*Workflow, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, organizationID, limit, offset)
}

// Trigger starts a workflow execution, either inline through the executor
// or via the job queue when a publisher is configured.
func (s *Service) Trigger(ctx context.Context, organizationID, workflowID, triggerType string, triggerData json.RawMessage) (*TriggerResult, error) {
	return s.trigger(ctx, organizationID, workflowID, triggerType, triggerData, "", false)
}

// TriggerWebhook is Trigger with the originating webhook path attached to
// the queued job for observability (). forceSync, set when the
// webhook's responseMode is waitForResult, runs inline through the executor
// even when a queue publisher is configured — only respondImmediately
// webhooks use the queue.
func (s *Service) TriggerWebhook(ctx context.Context, organizationID, workflowID, triggerType string, triggerData json.RawMessage, webhookPath string, forceSync bool) (*TriggerResult, error) {
	return s.trigger(ctx, organizationID, workflowID, triggerType, triggerData, webhookPath, forceSync)
}

func (s *Service) trigger(ctx context.Context, organizationID, workflowID, triggerType string, triggerData json.RawMessage, webhookPath string, forceSync bool) (*TriggerResult, error) {
	wf, err := s.repo.GetByID(ctx, organizationID, workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.Active {
		return nil, &apperrors.ValidationError{Field: "active", Message: "workflow must be active to execute"}
	}

	req := RunTriggerRequest{
		OrganizationID: organizationID,
		WorkflowID: workflowID,
		Trigger: triggerType,
		TriggerData: triggerData,
		WebhookPath: webhookPath,
	}

	if s.publisher != nil && !forceSync {
		jobID, err := s.publisher.PublishExecution(ctx, req)
		if err != nil {
			return nil, &apperrors.QueueError{Cause: err}
		}
		s.logger.Info("execution enqueued", "job_id", jobID, "workflow_id", workflowID, "trigger_type", triggerType)
		return &TriggerResult{JobID: jobID, Queued: true}, nil
	}

	if s.executor == nil {
		return nil, fmt.Errorf("no executor or queue publisher configured")
	}
	execution, err := s.executor.Run(ctx, req)
	if err != nil && execution == nil {
		s.logger.Error("execution failed to start", "error", err, "workflow_id", workflowID)
		return nil, err
	}
	s.logger.Info("execution finished", "execution_id", execution.ID, "workflow_id", workflowID, "status", execution.Status)
	return &TriggerResult{Execution: execution}, err
}

// GetExecutionByID retrieves an execution scoped to an organization.
func (s *Service) GetExecutionByID(ctx context.Context, organizationID, id string) (*Execution, error) {
	return s.repo.GetExecutionByID(ctx, organizationID, id)
}

// ListExecutions lists an organization's executions for a workflow.
func (s *Service) ListExecutions(ctx context.Context, organizationID, workflowID string, limit, offset int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListExecutions(ctx, organizationID, workflowID, limit, offset)
}
