package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/typeflow/typeflow/internal/api/response"
	"github.com/typeflow/typeflow/internal/schedule"
	"github.com/typeflow/typeflow/internal/validation"
)

// ScheduleService is the slice of schedule.Service the handler needs.
type ScheduleService interface {
	Create(ctx context.Context, tenantID, workflowID, userID string, input schedule.CreateScheduleInput) (*schedule.Schedule, error)
	GetByID(ctx context.Context, tenantID, id string) (*schedule.Schedule, error)
	Update(ctx context.Context, tenantID, id string, input schedule.UpdateScheduleInput) (*schedule.Schedule, error)
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID, workflowID string, limit, offset int) ([]*schedule.Schedule, error)
	ListAll(ctx context.Context, tenantID string, limit, offset int) ([]*schedule.ScheduleWithWorkflow, error)
	ParseNextRunTime(expression, timezone string) (time.Time, error)
	GetNextRunTimes(expression, timezone string, count int) ([]time.Time, error)
	ListExecutionLogs(ctx context.Context, tenantID, scheduleID string, limit, offset int) ([]*schedule.ExecutionLog, error)
	GetExecutionLog(ctx context.Context, tenantID, logID string) (*schedule.ExecutionLog, error)
	CountExecutionLogs(ctx context.Context, tenantID, scheduleID string) (int, error)
}

// ScheduleHandler implements the schedule trigger CRUD surface supplementing
// with a cron-driven trigger kind.
type ScheduleHandler struct {
	service ScheduleService
	logger *slog.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(service ScheduleService, logger *slog.Logger) *ScheduleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleHandler{service: service, logger: logger}
}

// Create creates a new cron schedule for a workflow.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	userID := actorID(r)
	workflowID := chi.URLParam(r, "workflowId")

	var input schedule.CreateScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	sched, err := h.service.Create(r.Context(), orgID, workflowID, userID, input)
	if err != nil {
		if _, ok := err.(*schedule.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to create schedule", "error", err, "workflow_id", workflowID)
		response.InternalError(w, h.logger, "failed to create schedule")
		return
	}

	response.Created(w, h.logger, map[string]any{"data": sched})
}

// List returns all schedules for a workflow.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	workflowID := chi.URLParam(r, "workflowId")

	limit, _ := validation.ParsePaginationLimit(r.URL.Query().Get("limit"), validation.DefaultPaginationLimit, validation.MaxPaginationLimit)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	schedules, err := h.service.List(r.Context(), orgID, workflowID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list schedules", "error", err, "workflow_id", workflowID)
		response.InternalError(w, h.logger, "failed to list schedules")
		return
	}

	response.Paginated(w, h.logger, schedules, limit, offset, 0)
}

// ListAll returns all schedules for the organization, across workflows.
func (h *ScheduleHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)

	limit, _ := validation.ParsePaginationLimit(r.URL.Query().Get("limit"), validation.DefaultPaginationLimit, validation.MaxPaginationLimit)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	schedules, err := h.service.ListAll(r.Context(), orgID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list all schedules", "error", err, "organization_id", orgID)
		response.InternalError(w, h.logger, "failed to list schedules")
		return
	}

	response.Paginated(w, h.logger, schedules, limit, offset, 0)
}

// Get retrieves a single schedule.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	scheduleID := chi.URLParam(r, "scheduleId")

	sched, err := h.service.GetByID(r.Context(), orgID, scheduleID)
	if err != nil {
		if err == schedule.ErrNotFound {
			response.NotFound(w, h.logger, "schedule not found")
			return
		}
		h.logger.Error("failed to get schedule", "error", err, "schedule_id", scheduleID)
		response.InternalError(w, h.logger, "failed to get schedule")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": sched})
}

// Update updates a schedule.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	scheduleID := chi.URLParam(r, "scheduleId")

	var input schedule.UpdateScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	sched, err := h.service.Update(r.Context(), orgID, scheduleID, input)
	if err != nil {
		if err == schedule.ErrNotFound {
			response.NotFound(w, h.logger, "schedule not found")
			return
		}
		if _, ok := err.(*schedule.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to update schedule", "error", err, "schedule_id", scheduleID)
		response.InternalError(w, h.logger, "failed to update schedule")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": sched})
}

// Delete removes a schedule.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	scheduleID := chi.URLParam(r, "scheduleId")

	if err := h.service.Delete(r.Context(), orgID, scheduleID); err != nil {
		if err == schedule.ErrNotFound {
			response.NotFound(w, h.logger, "schedule not found")
			return
		}
		h.logger.Error("failed to delete schedule", "error", err, "schedule_id", scheduleID)
		response.InternalError(w, h.logger, "failed to delete schedule")
		return
	}

	response.NoContent(w)
}

// ParseCron validates a cron expression and returns its next run time.
func (h *ScheduleHandler) ParseCron(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CronExpression string `json:"cron_expression"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}
	if input.Timezone == "" {
		input.Timezone = "UTC"
	}

	nextRun, err := h.service.ParseNextRunTime(input.CronExpression, input.Timezone)
	if err != nil {
		response.BadRequest(w, h.logger, "invalid cron expression: "+err.Error())
		return
	}

	response.JSON(w, h.logger, http.StatusOK, map[string]any{"valid": true, "next_run": nextRun})
}

// PreviewSchedule returns the next N execution times for a cron expression.
func (h *ScheduleHandler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CronExpression string `json:"cron_expression"`
		Timezone string `json:"timezone"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}
	if input.Timezone == "" {
		input.Timezone = "UTC"
	}
	if input.Count <= 0 {
		input.Count = 10
	}
	if input.Count > 50 {
		input.Count = 50
	}

	nextRuns, err := h.service.GetNextRunTimes(input.CronExpression, input.Timezone, input.Count)
	if err != nil {
		response.BadRequest(w, h.logger, "invalid cron expression: "+err.Error())
		return
	}

	response.JSON(w, h.logger, http.StatusOK, map[string]any{
		"valid": true,
		"next_runs": nextRuns,
		"count": len(nextRuns),
		"timezone": input.Timezone,
	})
}

// ListExecutionHistory returns execution history for a schedule.
func (h *ScheduleHandler) ListExecutionHistory(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	scheduleID := chi.URLParam(r, "scheduleId")

	limit, _ := validation.ParsePaginationLimit(r.URL.Query().Get("limit"), validation.DefaultPaginationLimit, validation.MaxPaginationLimit)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	logs, err := h.service.ListExecutionLogs(r.Context(), orgID, scheduleID, limit, offset)
	if err != nil {
		if err == schedule.ErrNotFound {
			response.NotFound(w, h.logger, "schedule not found")
			return
		}
		h.logger.Error("failed to list execution history", "error", err, "schedule_id", scheduleID)
		response.InternalError(w, h.logger, "failed to list execution history")
		return
	}

	total, err := h.service.CountExecutionLogs(r.Context(), orgID, scheduleID)
	if err != nil {
		h.logger.Error("failed to count execution logs", "error", err, "schedule_id", scheduleID)
		total = 0
	}

	response.Paginated(w, h.logger, logs, limit, offset, total)
}

// GetExecutionLog retrieves a specific execution log entry.
func (h *ScheduleHandler) GetExecutionLog(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	logID := chi.URLParam(r, "logId")

	log, err := h.service.GetExecutionLog(r.Context(), orgID, logID)
	if err != nil {
		if err == schedule.ErrNotFound {
			response.NotFound(w, h.logger, "execution log not found")
			return
		}
		h.logger.Error("failed to get execution log", "error", err, "log_id", logID)
		response.InternalError(w, h.logger, "failed to get execution log")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": log})
}
