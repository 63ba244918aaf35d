package webhook

import (
	"encoding/json"
	"time"
)

// ResponseMode controls whether a webhook's HTTP response waits for the
// workflow's final output or is returned as soon as the job is queued.
type ResponseMode string

const (
	ResponseModeWaitForResult ResponseMode = "waitForResult"
	ResponseModeRespondImmediately ResponseMode = "respondImmediately"
)

// Webhook represents a webhook trigger configuration. (organizationId, path)
// is unique; TenantID carries the organizationId value throughout this
// package.
type Webhook struct {
	ID string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"organizationId"`
	WorkflowID string `db:"workflow_id" json:"workflow_id"`
	NodeID string `db:"node_id" json:"node_id"`
	Name string `db:"name" json:"name"`
	Path string `db:"path" json:"path"`
	Method string `db:"method" json:"method,omitempty"`
	ResponseMode ResponseMode `db:"response_mode" json:"responseMode"`
	Secret string `db:"secret" json:"secret"`
	AuthType string `db:"auth_type" json:"auth_type"`
	AuthConfig json.RawMessage `db:"auth_config" json:"authConfig,omitempty"`
	RateLimit int `db:"rate_limit" json:"rateLimit"`
	Description string `db:"description" json:"description"`
	Priority int `db:"priority" json:"priority"`
	Enabled bool `db:"enabled" json:"isActive"`
	TriggerCount int `db:"trigger_count" json:"trigger_count"`
	LastTriggeredAt *time.Time `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WebhookURL returns the full webhook URL path per:
// /api/webhooks/{organizationId}/{path}.
func (w *Webhook) WebhookURL() string {
	return "/api/webhooks/" + w.TenantID + "/" + w.Path
}

// AuthType constants; this is a closed set, so adding a new value means
// updating every switch over AuthType too.
const (
	AuthTypeNone = "none"
	AuthTypeAPIKey = "api_key"
	AuthTypeBearer = "bearer"
	AuthTypeBasic = "basic"
)

// WebhookEventStatus represents the outcome of one ingress request.
type WebhookEventStatus string

const (
	EventStatusReceived WebhookEventStatus = "received"
	EventStatusProcessed WebhookEventStatus = "processed"
	EventStatusFiltered WebhookEventStatus = "filtered"
	EventStatusFailed WebhookEventStatus = "failed"
)

// EventMetadata carries request-origin details that don't belong in the
// JSONB request_body column.
type EventMetadata struct {
	SourceIP string `json:"sourceIp"`
	UserAgent string `json:"userAgent"`
	ReceivedAt time.Time `json:"receivedAt"`
	ContentType string `json:"contentType"`
	ContentLength int `json:"contentLength"`
}

// WebhookEvent is the audit log row for one incoming webhook request.
type WebhookEvent struct {
	ID string `json:"id" db:"id"`
	TenantID string `json:"tenantId" db:"tenant_id"`
	WebhookID string `json:"webhookId" db:"webhook_id"`
	ExecutionID *string `json:"executionId,omitempty" db:"execution_id"`
	RequestMethod string `json:"requestMethod" db:"request_method"`
	RequestHeaders map[string]string `json:"requestHeaders" db:"request_headers"`
	RequestBody json.RawMessage `json:"requestBody" db:"request_body"`
	ResponseStatus *int `json:"responseStatus,omitempty" db:"response_status"`
	ProcessingTimeMs *int `json:"processingTimeMs,omitempty" db:"processing_time_ms"`
	Status WebhookEventStatus `json:"status" db:"status"`
	ErrorMessage *string `json:"errorMessage,omitempty" db:"error_message"`
	FilteredReason *string `json:"filteredReason,omitempty" db:"filtered_reason"`
	Metadata *EventMetadata `json:"metadata,omitempty" db:"-"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// WebhookEventFilter represents query criteria for listing webhook events.
type WebhookEventFilter struct {
	WebhookID string
	Status *WebhookEventStatus
	StartDate *time.Time
	EndDate *time.Time
	Limit int
	Offset int
}
