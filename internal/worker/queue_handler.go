package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/typeflow/typeflow/internal/queue"
)

// QueueMessageHandler wraps the standard consumer to add requeue capability
type QueueMessageHandler struct {
	worker    *Worker
	sqsClient *queue.SQSClient
	logger    *slog.Logger
}

// NewQueueMessageHandler creates a handler that supports message requeue
func NewQueueMessageHandler(worker *Worker, sqsClient *queue.SQSClient, logger *slog.Logger) *QueueMessageHandler {
	return &QueueMessageHandler{
		worker:    worker,
		sqsClient: sqsClient,
		logger:    logger,
	}
}

// HandleMessage processes a message with receipt handle for requeue support.
// This is called by a custom consumer that exposes receipt handles.
func (h *QueueMessageHandler) HandleMessage(ctx context.Context, msg *queue.ExecutionMessage, receiptHandle string) error {
	h.logger.Info("handling queue message",
		"job_id", msg.JobID,
		"organization_id", msg.OrganizationID,
		"retry_count", msg.RetryCount,
	)

	_, err := h.worker.ProcessJob(ctx, msg)
	if err != nil {
		if errors.Is(err, ErrTenantAtCapacity) {
			h.logger.Info("organization at capacity, requeueing message with delay",
				"organization_id", msg.OrganizationID,
				"job_id", msg.JobID,
				"retry_count", msg.RetryCount,
			)

			if requeueErr := h.requeueWithDelay(ctx, receiptHandle, msg.RetryCount); requeueErr != nil {
				h.logger.Error("failed to requeue message", "error", requeueErr, "job_id", msg.JobID)
				return err
			}
			return ErrMessageRequeued
		}
		return err
	}

	return nil
}

// requeueWithDelay extends message visibility timeout to delay retry
func (h *QueueMessageHandler) requeueWithDelay(ctx context.Context, receiptHandle string, retryCount int) error {
	delay := calculateRequeueDelay(retryCount)

	h.logger.Debug("extending message visibility",
		"receipt_handle", receiptHandle,
		"delay_seconds", delay,
	)

	return h.sqsClient.ChangeMessageVisibility(ctx, receiptHandle, delay)
}

// ErrMessageRequeued indicates message was requeued and should not be deleted
var ErrMessageRequeued = errors.New("message requeued with delay")
