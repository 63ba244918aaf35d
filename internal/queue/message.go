package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionMessage is the job payload the webhook ingress enqueues and the
// worker consumes: {workflowId, organizationId, trigger, input,
// webhookPath?}, plus queue bookkeeping.
type ExecutionMessage struct {
	JobID string `json:"job_id"`
	OrganizationID string `json:"organization_id"`
	WorkflowID string `json:"workflow_id"`
	TriggerType string `json:"trigger_type"`
	TriggerData json.RawMessage `json:"trigger_data,omitempty"`
	WebhookPath string `json:"webhook_path,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
	RetryCount int `json:"retry_count,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// NewExecutionMessage creates a new execution job message.
func NewExecutionMessage(jobID, organizationID, workflowID, triggerType string, triggerData json.RawMessage) *ExecutionMessage {
	return &ExecutionMessage{
		JobID: jobID,
		OrganizationID: organizationID,
		WorkflowID: workflowID,
		TriggerType: triggerType,
		TriggerData: triggerData,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Marshal serializes the execution message to JSON.
func (m *ExecutionMessage) Marshal() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution message: %w", err)
	}
	return string(data), nil
}

// UnmarshalExecutionMessage deserializes an execution message from JSON.
func UnmarshalExecutionMessage(data string) (*ExecutionMessage, error) {
	var msg ExecutionMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution message: %w", err)
	}
	return &msg, nil
}

// Validate checks if the execution message is valid.
func (m *ExecutionMessage) Validate() error {
	if m.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if m.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if m.WorkflowID == "" {
		return fmt.Errorf("workflow_id is required")
	}
	if m.TriggerType == "" {
		return fmt.Errorf("trigger_type is required")
	}
	return nil
}

// GetMessageAttributes returns message attributes for SQS.
func (m *ExecutionMessage) GetMessageAttributes() map[string]string {
	attrs := map[string]string{
		"organization_id": m.OrganizationID,
		"workflow_id": m.WorkflowID,
		"trigger_type": m.TriggerType,
	}
	if m.CorrelationID != "" {
		attrs["correlation_id"] = m.CorrelationID
	}
	return attrs
}

// IncrementRetryCount increments the retry count.
func (m *ExecutionMessage) IncrementRetryCount() {
	m.RetryCount++
}

// ShouldRetry determines if the message should be retried based on retry count.
func (m *ExecutionMessage) ShouldRetry(maxRetries int) bool {
	return m.RetryCount < maxRetries
}
