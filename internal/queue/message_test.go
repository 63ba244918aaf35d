package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecutionMessage(t *testing.T) {
	triggerData := json.RawMessage(`{"key":"value"}`)
	msg := NewExecutionMessage("job-1", "org-1", "workflow-1", "webhook", triggerData)

	assert.Equal(t, "job-1", msg.JobID)
	assert.Equal(t, "org-1", msg.OrganizationID)
	assert.Equal(t, "workflow-1", msg.WorkflowID)
	assert.Equal(t, "webhook", msg.TriggerType)
	assert.Equal(t, triggerData, msg.TriggerData)
	assert.False(t, msg.EnqueuedAt.IsZero())
}

func TestExecutionMessage_MarshalUnmarshalRoundTrip(t *testing.T) {
	msg := NewExecutionMessage("job-1", "org-1", "workflow-1", "manual", json.RawMessage(`{"a":1}`))
	msg.WebhookPath = "orders/created"
	msg.CorrelationID = "corr-1"

	body, err := msg.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalExecutionMessage(body)
	require.NoError(t, err)

	assert.Equal(t, msg.JobID, got.JobID)
	assert.Equal(t, msg.OrganizationID, got.OrganizationID)
	assert.Equal(t, msg.WorkflowID, got.WorkflowID)
	assert.Equal(t, msg.TriggerType, got.TriggerType)
	assert.Equal(t, msg.WebhookPath, got.WebhookPath)
	assert.Equal(t, msg.CorrelationID, got.CorrelationID)
	assert.JSONEq(t, string(msg.TriggerData), string(got.TriggerData))
}

func TestExecutionMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ExecutionMessage)
		wantErr string
	}{
		{"missing job id", func(m *ExecutionMessage) { m.JobID = "" }, "job_id is required"},
		{"missing organization id", func(m *ExecutionMessage) { m.OrganizationID = "" }, "organization_id is required"},
		{"missing workflow id", func(m *ExecutionMessage) { m.WorkflowID = "" }, "workflow_id is required"},
		{"missing trigger type", func(m *ExecutionMessage) { m.TriggerType = "" }, "trigger_type is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewExecutionMessage("job-1", "org-1", "workflow-1", "manual", nil)
			tt.mutate(msg)
			err := msg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	valid := NewExecutionMessage("job-1", "org-1", "workflow-1", "manual", nil)
	assert.NoError(t, valid.Validate())
}

func TestExecutionMessage_GetMessageAttributes(t *testing.T) {
	msg := NewExecutionMessage("job-1", "org-1", "workflow-1", "webhook", nil)
	attrs := msg.GetMessageAttributes()

	assert.Equal(t, "org-1", attrs["organization_id"])
	assert.Equal(t, "workflow-1", attrs["workflow_id"])
	assert.Equal(t, "webhook", attrs["trigger_type"])
	_, hasCorrelation := attrs["correlation_id"]
	assert.False(t, hasCorrelation, "correlation_id should be omitted when unset")

	msg.CorrelationID = "corr-1"
	attrs = msg.GetMessageAttributes()
	assert.Equal(t, "corr-1", attrs["correlation_id"])
}

func TestExecutionMessage_ShouldRetry(t *testing.T) {
	msg := NewExecutionMessage("job-1", "org-1", "workflow-1", "manual", nil)
	assert.True(t, msg.ShouldRetry(3))

	msg.RetryCount = 3
	assert.False(t, msg.ShouldRetry(3))

	msg.IncrementRetryCount()
	assert.Equal(t, 4, msg.RetryCount)
}
