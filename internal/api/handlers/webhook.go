package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/typeflow/typeflow/internal/api/response"
	"github.com/typeflow/typeflow/internal/webhook"
	"github.com/typeflow/typeflow/internal/workflow"
)

// WebhookTriggerService is the slice of workflow.Service the ingress
// handler needs to dispatch a matched webhook to the executor.
type WebhookTriggerService interface {
	TriggerWebhook(ctx context.Context, organizationID, workflowID, triggerType string, triggerData json.RawMessage, webhookPath string, forceSync bool) (*workflow.TriggerResult, error)
	GetByID(ctx context.Context, organizationID, id string) (*workflow.Workflow, error)
}

// RateLimiter is the sliding-window limiter the ingress handler enforces
// per (organizationId, path).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// WebhookLookupService is the slice of webhook.Service the ingress handler
// needs: resolve the inbound request to a webhook, authenticate it, and
// record the request/outcome.
type WebhookLookupService interface {
	GetByOrganizationAndPath(ctx context.Context, organizationID, path string) (*webhook.Webhook, error)
	Authenticate(w *webhook.Webhook, headers map[string]string, query map[string][]string) bool
	LogEvent(ctx context.Context, event *webhook.WebhookEvent) error
	MarkEventProcessed(ctx context.Context, eventID, executionID string, processingTimeMs int) error
	MarkEventFailed(ctx context.Context, eventID string, errorMsg string) error
}

// WebhookIngressHandler implements: it receives inbound HTTP requests
// on /api/webhooks/{organizationId}/{path}, authenticates, rate-limits, and
// dispatches them to the graph executor.
type WebhookIngressHandler struct {
	webhooks WebhookLookupService
	workflows WebhookTriggerService
	limiter RateLimiter
	logger *slog.Logger
}

// NewWebhookIngressHandler creates a new ingress handler.
func NewWebhookIngressHandler(webhooks WebhookLookupService, workflows WebhookTriggerService, limiter RateLimiter, logger *slog.Logger) *WebhookIngressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookIngressHandler{webhooks: webhooks, workflows: workflows, limiter: limiter, logger: logger}
}

// webhookRateWindow is the window rateLimit is expressed against
// (requests per minute).
const webhookRateWindow = time.Minute

// Ingress handles every verb on /api/webhooks/{organizationId}/{path}.
func (h *WebhookIngressHandler) Ingress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := chi.URLParam(r, "organizationId")
	path := chi.URLParam(r, "*")

	wh, err := h.webhooks.GetByOrganizationAndPath(ctx, organizationID, path)
	if err != nil {
		response.NotFound(w, h.logger, "webhook not found")
		return
	}

	if wh.RateLimit > 0 && h.limiter != nil {
		key := organizationID + ":" + path
		allowed, err := h.limiter.Allow(ctx, key, int64(wh.RateLimit), webhookRateWindow)
		if err != nil {
			h.logger.Error("rate limit check failed", "error", err, "webhook_id", wh.ID)
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(webhookRateWindow.Seconds())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(webhookRateWindow).Unix(), 10))
			response.TooManyRequests(w, h.logger, "rate limit exceeded")
			return
		}
	}

	if !wh.Enabled {
		response.Forbidden(w, h.logger, "webhook is inactive")
		return
	}
	wf, err := h.workflows.GetByID(ctx, organizationID, wh.WorkflowID)
	if err != nil {
		response.NotFound(w, h.logger, "workflow not found")
		return
	}
	if !wf.Active {
		response.Forbidden(w, h.logger, "workflow is inactive")
		return
	}

	headers := flattenHeaders(r.Header)
	if !h.webhooks.Authenticate(wh, headers, r.URL.Query()) {
		response.Unauthorized(w, h.logger, "authentication failed")
		return
	}

	if wh.Method != "" && !strings.EqualFold(wh.Method, r.Method) {
		response.Error(w, h.logger, http.StatusMethodNotAllowed, "method not allowed", response.ErrCodeBadRequest)
		return
	}

	receivedAt := time.Now().UTC()
	rawBody, _ := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	contentType := r.Header.Get("Content-Type")
	body := parseBody(contentType, rawBody)

	trigger := buildTriggerPayload(r, organizationID, path, wh.ID, headers, body, rawBody, receivedAt, contentType)
	triggerData, err := json.Marshal(trigger)
	if err != nil {
		response.InternalError(w, h.logger, "failed to encode trigger payload")
		return
	}

	event := &webhook.WebhookEvent{
		ID: uuid.New().String(),
		TenantID: organizationID,
		WebhookID: wh.ID,
		RequestMethod: r.Method,
		RequestHeaders: headers,
		RequestBody: mustMarshal(body),
		Status: webhook.EventStatusReceived,
		Metadata: &webhook.EventMetadata{
			SourceIP: clientIP(r),
			UserAgent: r.UserAgent(),
			ReceivedAt: receivedAt,
			ContentType: contentType,
			ContentLength: len(rawBody),
		},
		CreatedAt: receivedAt,
	}
	if err := h.webhooks.LogEvent(ctx, event); err != nil {
		h.logger.Error("failed to persist webhook event", "error", err, "webhook_id", wh.ID)
	}

	start := time.Now()
	forceSync := wh.ResponseMode != webhook.ResponseModeRespondImmediately
	result, err := h.workflows.TriggerWebhook(ctx, organizationID, wh.WorkflowID, "webhook", triggerData, wh.Path, forceSync)
	if err != nil {
		_ = h.webhooks.MarkEventFailed(ctx, event.ID, err.Error())
		response.InternalError(w, h.logger, "failed to trigger workflow")
		return
	}

	if result.Queued {
		response.JSON(w, h.logger, http.StatusAccepted, map[string]any{
			"success": true,
			"jobId": result.JobID,
			"status": "queued",
		})
		return
	}

	execution := result.Execution
	if execution.Status == workflow.ExecutionStatusFailed {
		_ = h.webhooks.MarkEventFailed(ctx, event.ID, execution.Error)
		response.Error(w, h.logger, http.StatusInternalServerError, execution.Error, response.ErrCodeInternal)
		return
	}

	_ = h.webhooks.MarkEventProcessed(ctx, event.ID, execution.ID, int(time.Since(start).Milliseconds()))
	response.JSON(w, h.logger, http.StatusOK, shapeResponse(execution.Result))
}

// shapeResponse applies response-shaping rule: if the first item's
// json is an object with exactly one key "value", unwrap it; otherwise
// return the first item's json. No items yields an empty object.
func shapeResponse(result json.RawMessage) any {
	var items []workflow.Item
	if len(result) > 0 {
		if err := json.Unmarshal(result, &items); err != nil {
			return map[string]any{}
		}
	}
	if len(items) == 0 {
		return map[string]any{}
	}
	first := items[0].JSON
	if len(first) == 1 {
		if v, ok := first["value"]; ok {
			return v
		}
	}
	return first
}

func buildTriggerPayload(r *http.Request, organizationID, path, webhookID string, headers map[string]string, body any, rawBody []byte, receivedAt time.Time, contentType string) map[string]any {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	hostname := host
	port := ""
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		hostname = host[:idx]
		port = host[idx+1:]
	}

	query := map[string]any{}
	for k, vs := range r.URL.Query() {
		if len(vs) == 1 {
			query[k] = vs[0]
		} else {
			query[k] = vs
		}
	}

	cookies := map[string]string{}
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	return map[string]any{
		"method": r.Method,
		"url": r.URL.String(),
		"protocol": scheme,
		"host": host,
		"hostname": hostname,
		"port": port,
		"pathname": r.URL.Path,
		"headers": headers,
		"body": body,
		"rawBody": string(rawBody),
		"query": query,
		"cookies": cookies,
		"params": map[string]string{
			"organizationId": organizationID,
			"path": path,
		},
		"client": map[string]string{
			"ip": clientIP(r),
			"userAgent": r.UserAgent(),
			"referer": r.Referer(),
			"origin": r.Header.Get("Origin"),
		},
		"webhookId": webhookID,
		"receivedAt": receivedAt.Format(time.RFC3339Nano),
		"contentType": contentType,
	}
}

// parseBody parses the raw request body based on content type. Parse
// failures yield an empty object rather than aborting the request (// step 6).
func parseBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx != -1 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))

	switch {
	case mediaType == "application/json" || mediaType == "":
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
		return map[string]any{}
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return map[string]any{}
		}
		out := map[string]any{}
		for k, vs := range values {
			if len(vs) == 1 {
				out[k] = vs[0]
			} else {
				out[k] = vs
			}
		}
		return out
	case strings.HasPrefix(mediaType, "multipart/"):
		return map[string]any{"raw": string(raw)}
	case mediaType == "text/xml" || mediaType == "application/xml":
		return map[string]any{"raw": string(raw)}
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
		return map[string]any{"raw": string(raw)}
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = strings.Join(vs, ", ")
		}
	}
	return out
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
