package worker

import (
	"context"
	"errors"

	"github.com/typeflow/typeflow/internal/queue"
)

// processExecutionMessageWithRequeue wraps ProcessJob with requeue-by-delay
// when the organization is at its concurrency cap, instead of letting SQS's
// default visibility timeout (and its jittered retry) apply.
func (w *Worker) processExecutionMessageWithRequeue(ctx context.Context, msg *queue.ExecutionMessage, receiptHandle string) error {
	_, err := w.ProcessJob(ctx, msg)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTenantAtCapacity) {
		w.logger.Info("organization at capacity, requeueing message",
			"organization_id", msg.OrganizationID,
			"job_id", msg.JobID,
			"retry_count", msg.RetryCount,
		)
		if w.sqsClient != nil {
			if requeueErr := w.requeueMessageWithDelay(ctx, receiptHandle, msg.RetryCount); requeueErr != nil {
				w.logger.Error("failed to requeue message", "error", requeueErr, "job_id", msg.JobID)
				return err
			}
			return nil
		}
		return err
	}

	return err
}

// requeueMessageWithDelay extends message visibility timeout to implement delay
func (w *Worker) requeueMessageWithDelay(ctx context.Context, receiptHandle string, retryCount int) error {
	if w.sqsClient == nil {
		return errors.New("SQS client not initialized")
	}

	return requeueMessage(ctx, w.sqsClient, receiptHandle, retryCount)
}
