package worker

import (
	"context"

	"github.com/typeflow/typeflow/internal/queue"
	"github.com/typeflow/typeflow/internal/tracing"
)

// handleMessageWithTracing wraps message handling with distributed tracing
func (h *QueueMessageHandler) handleMessageWithTracing(ctx context.Context, msg *queue.ExecutionMessage, receiptHandle string) error {
	return tracing.TraceQueueMessage(
		ctx,
		"workflow-executions",
		msg.JobID,
		func(ctx context.Context) error {
			// Add message attributes to span
			tracing.AddWorkflowAttributes(ctx, map[string]interface{}{
				"organization_id": msg.OrganizationID,
				"workflow_id":     msg.WorkflowID,
				"job_id":          msg.JobID,
				"retry_count":     msg.RetryCount,
				"receipt_handle":  receiptHandle,
			})

			return h.HandleMessage(ctx, msg, receiptHandle)
		},
	)
}
