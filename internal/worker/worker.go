package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/typeflow/typeflow/internal/config"
	"github.com/typeflow/typeflow/internal/executor"
	"github.com/typeflow/typeflow/internal/queue"
	"github.com/typeflow/typeflow/internal/workflow"
)

// WorkflowJobResult is the outcome of one job, independent of how
// the job reached the worker (queue message or direct dispatch).
type WorkflowJobResult struct {
	Success bool `json:"success"`
	Outputs json.RawMessage `json:"outputs,omitempty"`
	ExecutionTime time.Duration `json:"executionTime"`
	Error string `json:"error,omitempty"`
	NodeResults map[string]*workflow.NodeResult `json:"nodeResults,omitempty"`
}

// Worker consumes queued workflow jobs with bounded concurrency and a
// job-rate cap, driving the graph executor and persisting results.
type Worker struct {
	config *config.Config
	logger *slog.Logger
	db *sqlx.DB
	redis *redis.Client
	executor *executor.Executor
	workflowRepo *workflow.Repository

	queueConsumer *queue.Consumer
	sqsClient *queue.SQSClient
	queueEnabled bool

	concurrency int
	limiter *rate.Limiter
	concurrencyLimit *TenantConcurrencyLimiter
	wg sync.WaitGroup

	activeExecutions atomic.Int32
	processedTotal atomic.Int64
	failedTotal atomic.Int64
}

// New creates a new worker instance. The database/executor/credential
// wiring mirrors cmd/api's, since the worker runs the same graph executor
// against the same schema, just triggered from the queue instead of an
// inline HTTP request.
func New(cfg *config.Config, exec *executor.Executor, workflowRepo *workflow.Repository, db *sqlx.DB, logger *slog.Logger) (*Worker, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB: cfg.Redis.DB,
	})

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	rateLimit := cfg.Worker.RateLimitPerSecond
	if rateLimit <= 0 {
		rateLimit = 10
	}

	maxPerTenant := 10
	if cfg.Worker.MaxConcurrencyPerTenant > 0 {
		maxPerTenant = cfg.Worker.MaxConcurrencyPerTenant
	}
	concurrencyLimit := NewTenantConcurrencyLimiter(redisClient, maxPerTenant)

	w := &Worker{
		config: cfg,
		logger: logger,
		db: db,
		redis: redisClient,
		executor: exec,
		workflowRepo: workflowRepo,
		concurrency: concurrency,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit)),
		concurrencyLimit: concurrencyLimit,
		queueEnabled: cfg.Queue.Enabled,
	}

	if cfg.Queue.Enabled {
		if cfg.AWS.SQSQueueURL == "" {
			return nil, ErrMissingQueueURL
		}

		sqsClient, err := queue.NewSQSClient(context.Background(), queue.SQSConfig{
			QueueURL: cfg.AWS.SQSQueueURL,
			DLQueueURL: cfg.AWS.SQSDLQueueURL,
			Region: cfg.AWS.Region,
			AccessKeyID: cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint: cfg.AWS.Endpoint,
		}, logger)
		if err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, msg *queue.ExecutionMessage) error {
			_, err := w.ProcessJob(ctx, msg)
			return err
		}

		consumerConfig := queue.ConsumerConfig{
			MaxMessages: cfg.Queue.MaxMessages,
			WaitTimeSeconds: cfg.Queue.WaitTimeSeconds,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			MaxRetries: cfg.Queue.MaxRetries,
			ProcessTimeout: time.Duration(cfg.Queue.ProcessTimeout) * time.Second,
			PollInterval: time.Duration(cfg.Queue.PollInterval) * time.Second,
			ConcurrentWorkers: concurrency,
			DeleteAfterProcess: cfg.Queue.DeleteAfterProcess,
		}

		w.queueConsumer = queue.NewConsumer(sqsClient, handler, consumerConfig, logger)
		w.sqsClient = sqsClient
		logger.Info("queue consumer initialized", "queue_url", cfg.AWS.SQSQueueURL)
	}

	return w, nil
}

// Start begins consuming jobs from the queue. It blocks until ctx is
// cancelled, at which point the underlying consumer stops accepting new
// messages and Wait drains whatever is already in flight.
func (w *Worker) Start(ctx context.Context) error {
	if !w.queueEnabled || w.queueConsumer == nil {
		w.logger.Info("worker started with no queue configured, idling")
		<-ctx.Done()
		return ctx.Err()
	}

	w.logger.Info("starting queue-based worker", "concurrency", w.concurrency, "rate_limit_per_second", w.config.Worker.RateLimitPerSecond)
	return w.queueConsumer.Start(ctx)
}

// ProcessJob runs one job to completion and returns its WorkflowJobResult.
// Failures are captured in the result rather than returned as an error so
// that a single bad job doesn't stop the caller treating this as a retry
// signal by default (: "no default retry").
func (w *Worker) ProcessJob(ctx context.Context, msg *queue.ExecutionMessage) (*WorkflowJobResult, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	acquired, err := w.concurrencyLimit.Acquire(ctx, msg.OrganizationID, msg.JobID)
	if err != nil {
		w.logger.Error("failed to acquire organization concurrency slot", "error", err, "organization_id", msg.OrganizationID)
		return nil, err
	}
	if !acquired {
		w.logger.Warn("organization at concurrency limit, job will be retried",
			"organization_id", msg.OrganizationID,
			"job_id", msg.JobID,
			"max_concurrent", w.concurrencyLimit.GetMaxPerTenant(),)
		return nil, ErrTenantAtCapacity
	}
	defer func() {
		if err := w.concurrencyLimit.Release(ctx, msg.OrganizationID, msg.JobID); err != nil {
			w.logger.Error("failed to release organization concurrency slot", "error", err, "organization_id", msg.OrganizationID)
		}
	}()

	w.activeExecutions.Add(1)
	defer w.activeExecutions.Add(-1)

	w.logger.Info("processing job",
		"job_id", msg.JobID,
		"workflow_id", msg.WorkflowID,
		"organization_id", msg.OrganizationID,
		"trigger_type", msg.TriggerType,)

	start := time.Now()
	execution, err := w.executor.Run(ctx, executor.RunRequest{
		OrganizationID: msg.OrganizationID,
		WorkflowID: msg.WorkflowID,
		Trigger: executor.TriggerKind(msg.TriggerType),
		TriggerData: msg.TriggerData,
	})
	elapsed := time.Since(start)

	result := &WorkflowJobResult{ExecutionTime: elapsed}
	if execution != nil {
		result.NodeResults = map[string]*workflow.NodeResult(execution.NodeResults)
		result.Outputs = execution.Result
	}
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		w.failedTotal.Add(1)
		w.logger.Error("job failed", "error", err, "job_id", msg.JobID, "workflow_id", msg.WorkflowID)
		return result, nil
	}

	result.Success = true
	w.processedTotal.Add(1)
	w.logger.Info("job completed", "job_id", msg.JobID, "workflow_id", msg.WorkflowID, "execution_time_ms", elapsed.Milliseconds())
	return result, nil
}

// Wait waits for all in-flight processing to finish. Combined with
// cancelling Start's context, this is the worker's graceful-shutdown
// drain: stop accepting new jobs, let the current batch complete.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Close cleans up worker resources.
func (w *Worker) Close() error {
	if w.db != nil {
		w.db.Close()
	}
	if w.redis != nil {
		w.redis.Close()
	}
	return nil
}

func (w *Worker) getActiveExecutions() int32 { return w.activeExecutions.Load() }
func (w *Worker) getProcessedCount() int64 { return w.processedTotal.Load() }
func (w *Worker) getFailedCount() int64 { return w.failedTotal.Load() }

// WorkerError is a sentinel error type for worker-level failures.
type WorkerError struct {
	Message string
}

func (e WorkerError) Error() string {
	return e.Message
}

var (
	ErrTenantAtCapacity = WorkerError{Message: "organization at concurrency capacity"}
	ErrMissingQueueURL = WorkerError{Message: "queue URL is required when queue is enabled"}
)
