package queue

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/typeflow/typeflow/internal/workflow"
)

// PublisherAdapter implements workflow.QueuePublisher on top of the SQS
// Publisher, generating the job id returned to callers (e.g. a webhook's
// 202 response body) before the message ever reaches SQS.
type PublisherAdapter struct {
	publisher *Publisher
	logger    *slog.Logger
}

// NewPublisherAdapter creates a new publisher adapter.
func NewPublisherAdapter(publisher *Publisher, logger *slog.Logger) *PublisherAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublisherAdapter{publisher: publisher, logger: logger}
}

// PublishExecution satisfies workflow.QueuePublisher.
func (a *PublisherAdapter) PublishExecution(ctx context.Context, req workflow.RunTriggerRequest) (string, error) {
	jobID := uuid.New().String()
	msg := NewExecutionMessage(jobID, req.OrganizationID, req.WorkflowID, req.Trigger, req.TriggerData)
	msg.WebhookPath = req.WebhookPath
	if err := a.publisher.PublishExecution(ctx, msg); err != nil {
		return "", err
	}
	return jobID, nil
}
