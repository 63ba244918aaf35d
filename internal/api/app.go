package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/typeflow/typeflow/internal/api/handlers"
	apiMiddleware "github.com/typeflow/typeflow/internal/api/middleware"
	"github.com/typeflow/typeflow/internal/config"
	"github.com/typeflow/typeflow/internal/credential"
	"github.com/typeflow/typeflow/internal/debug"
	"github.com/typeflow/typeflow/internal/errortracking"
	"github.com/typeflow/typeflow/internal/executor"
	"github.com/typeflow/typeflow/internal/executor/javascript"
	"github.com/typeflow/typeflow/internal/metrics"
	"github.com/typeflow/typeflow/internal/queue"
	"github.com/typeflow/typeflow/internal/ratelimit"
	"github.com/typeflow/typeflow/internal/schedule"
	"github.com/typeflow/typeflow/internal/tracing"
	"github.com/typeflow/typeflow/internal/webhook"
	"github.com/typeflow/typeflow/internal/workflow"
)

// App holds application dependencies for the API process: the HTTP surface
// over workflows, webhooks, schedules, and credentials.
type App struct {
	config *config.Config
	logger *slog.Logger
	db *sqlx.DB
	redis *redis.Client
	router *chi.Mux

	errorTracker *errortracking.Tracker

	metrics *metrics.Metrics
	metricsRegistry *prometheus.Registry
	dbStatsCollector *metrics.DBStatsCollector
	metricsStopCtx context.Context
	metricsStopFunc context.CancelFunc

	workflowService *workflow.Service
	webhookService *webhook.Service
	scheduleService *schedule.Service
	credentialService credential.Service
	debugService *debug.Service

	healthHandler *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler
	webhookIngressHandler *handlers.WebhookIngressHandler
	webhookManagementHandler *handlers.WebhookManagementHandler
	scheduleHandler *handlers.ScheduleHandler
	credentialHandler *handlers.CredentialHandler
	debugHandler *handlers.DebugHandler
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	db, err := sqlx.Connect("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	app.db = db

	app.metrics = metrics.NewMetrics()
	app.metricsRegistry = prometheus.NewRegistry()
	if err := app.metrics.Register(app.metricsRegistry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	logger.Info("metrics initialized")

	app.metricsStopCtx, app.metricsStopFunc = context.WithCancel(context.Background())
	app.dbStatsCollector = metrics.NewDBStatsCollector(app.metrics, db.DB, "main", logger)
	go app.dbStatsCollector.Start(app.metricsStopCtx, 15*time.Second)

	app.redis = redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB: cfg.Redis.DB,
	})

	errorTracker, err := errortracking.Initialize(cfg.Observability)
	if err != nil {
		logger.Warn("failed to initialize Sentry", "error", err)
	}
	app.errorTracker = errorTracker

	workflowRepo := workflow.NewRepository(db)
	webhookRepo := webhook.NewRepository(db)
	scheduleRepo := schedule.NewRepository(db)
	credentialRepo := credential.NewRepository(db)

	app.workflowService = workflow.NewService(workflowRepo, logger)
	app.webhookService = webhook.NewService(webhookRepo, logger)
	app.scheduleService = schedule.NewService(scheduleRepo, logger)
	app.scheduleService.SetWorkflowService(&workflowGetterAdapter{workflowService: app.workflowService})

	encryptionService, err := newEncryptionService(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.credentialService = credential.NewServiceImpl(credentialRepo, encryptionService, logger)
	credentialResolver := credential.NewHandleResolver(app.credentialService, logger)

	jsEngine, err := javascript.NewEngine(javascript.DefaultEngineConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize javascript engine: %w", err)
	}
	graphExecutor := executor.New(workflowRepo, jsEngine, credentialResolver, logger)
	app.workflowService.SetExecutor(executor.RunTriggerAdapter{Executor: graphExecutor})
	app.debugService = debug.NewService(workflowRepo, graphExecutor, logger)

	if cfg.Queue.Enabled {
		sqsClient, err := queue.NewSQSClient(context.Background(), queue.SQSConfig{
			QueueURL: cfg.AWS.SQSQueueURL,
			DLQueueURL: cfg.AWS.SQSDLQueueURL,
			Region: cfg.AWS.Region,
			AccessKeyID: cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint: cfg.AWS.Endpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQS client: %w", err)
		}
		publisher := queue.NewPublisher(sqsClient, logger)
		app.workflowService.SetQueuePublisher(queue.NewPublisherAdapter(publisher, logger))
		logger.Info("queue-backed execution enabled", "queue_url", cfg.AWS.SQSQueueURL)
	}

	app.healthHandler = handlers.NewHealthHandler(db, app.redis)
	app.workflowHandler = handlers.NewWorkflowHandler(app.workflowService, app.webhookService, logger)
	app.webhookManagementHandler = handlers.NewWebhookManagementHandler(app.webhookService, logger)
	app.webhookIngressHandler = handlers.NewWebhookIngressHandler(app.webhookService,
		app.workflowService,
		ratelimit.NewSlidingWindowLimiter(app.redis),
		logger,)
	app.scheduleHandler = handlers.NewScheduleHandler(app.scheduleService, logger)
	app.credentialHandler = handlers.NewCredentialHandler(app.credentialService, logger)
	app.debugHandler = handlers.NewDebugHandler(app.debugService, logger)

	app.setupRouter()

	return app, nil
}

// newEncryptionService builds the credential vault's envelope-encryption
// backend: AWS KMS in production, a local master key in development,
// mirroring the worker process's wiring exactly.
func newEncryptionService(cfg *config.Config, logger *slog.Logger) (credential.EncryptionServiceInterface, error) {
	if cfg.Credential.UseKMS {
		if cfg.Credential.KMSKeyID == "" {
			return nil, fmt.Errorf("CREDENTIAL_KMS_KEY_ID is required when USE_KMS is true")
		}
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(cfg.Credential.KMSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for KMS: %w", err)
		}
		kmsClient := kms.NewFromConfig(awsCfg)
		kmsEncryptionService, err := credential.NewKMSEncryptionService(kmsClient, cfg.Credential.KMSKeyID)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS encryption service: %w", err)
		}
		logger.Info("credential encryption initialized", "mode", "KMS", "key_id", cfg.Credential.KMSKeyID, "region", cfg.Credential.KMSRegion)
		return credential.NewKMSEncryptionAdapter(kmsEncryptionService), nil
	}

	masterKey, err := base64.StdEncoding.DecodeString(cfg.Credential.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential master key: %w", err)
	}
	simpleEncryption, err := credential.NewSimpleEncryptionService(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create simple encryption service: %w", err)
	}
	logger.Warn("credential encryption initialized", "mode", "simple", "warning", "use KMS in production")
	return credential.NewSimpleEncryptionAdapter(simpleEncryption), nil
}

// Router returns the HTTP router.
func (a *App) Router() http.Handler {
	return a.router
}

// Close cleans up application resources.
func (a *App) Close() error {
	if a.metricsStopFunc != nil {
		a.metricsStopFunc()
	}
	if a.dbStatsCollector != nil {
		a.dbStatsCollector.Stop()
	}
	if a.errorTracker != nil {
		a.errorTracker.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	return nil
}

func (a *App) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	httpLogLevel := parseHTTPLogLevel(a.config.Server.Env)
	r.Use(apiMiddleware.StructuredLoggerWithConfig(a.logger, apiMiddleware.HTTPLoggerConfig{
		LogLevel: httpLogLevel,
	}))

	securityHeadersConfig := apiMiddleware.SecurityHeadersConfig{
		EnableHSTS: a.config.SecurityHeader.EnableHSTS,
		HSTSMaxAge: a.config.SecurityHeader.HSTSMaxAge,
		CSPDirectives: a.config.SecurityHeader.CSPDirectives,
		FrameOptions: a.config.SecurityHeader.FrameOptions,
	}
	r.Use(apiMiddleware.SecurityHeaders(securityHeadersConfig))

	if a.config.Observability.TracingEnabled {
		r.Use(tracing.HTTPMiddleware())
	}
	if a.errorTracker != nil {
		r.Use(apiMiddleware.SentryMiddleware(a.errorTracker))
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(metrics.HTTPMetricsMiddleware(a.metrics))
	r.Use(apiMiddleware.RequestValidation(apiMiddleware.DefaultRequestValidationConfig()))

	corsMiddleware, err := apiMiddleware.NewCORSMiddleware(a.config.CORS, a.config.Server.Env)
	if err != nil {
		a.logger.Error("failed to create CORS middleware", "error", err)
	} else {
		r.Use(corsMiddleware)
	}

	r.Get("/healthz", a.healthHandler.Health)
	r.Get("/readyz", a.healthHandler.Ready)

	if a.config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(a.metricsRegistry, promhttp.HandlerOpts{}))
	}

	// Webhook ingress: public, organization-scoped by path, no admin
	// middleware group — authentication is per-webhook (step 4).
	r.Route("/api/webhooks/{organizationId}", func(r chi.Router) {
		r.HandleFunc("/*", a.webhookIngressHandler.Ingress)
	})

	// Admin/RPC surface. Session/auth management is out of scope, so
	// routes are scoped purely by the organizationId path parameter.
	r.Route("/api/v1/organizations/{organizationId}", func(r chi.Router) {
		r.Use(apiMiddleware.ValidateUUID("organizationId"))

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", a.workflowHandler.List)
			r.Post("/", a.workflowHandler.Create)
			r.Get("/{workflowId}", a.workflowHandler.Get)
			r.Put("/{workflowId}", a.workflowHandler.Update)
			r.Delete("/{workflowId}", a.workflowHandler.Delete)
			r.Post("/{workflowId}/execute", a.workflowHandler.Execute)

			r.Route("/{workflowId}/schedules", func(r chi.Router) {
				r.Get("/", a.scheduleHandler.List)
				r.Post("/", a.scheduleHandler.Create)
			})

			r.Put("/{workflowId}/breakpoints", a.debugHandler.ToggleBreakpoint)
		})

		r.Route("/debug/sessions", func(r chi.Router) {
			r.Post("/", a.debugHandler.CreateSession)
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", a.debugHandler.GetState)
				r.Post("/start", a.debugHandler.Start)
				r.Post("/continue", a.debugHandler.Continue)
				r.Post("/step-over", a.debugHandler.StepOver)
				r.Post("/terminate", a.debugHandler.Terminate)
			})
		})

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", a.workflowHandler.ListExecutions)
			r.Get("/{executionId}", a.workflowHandler.GetExecution)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", a.scheduleHandler.ListAll)
			r.Get("/{scheduleId}", a.scheduleHandler.Get)
			r.Put("/{scheduleId}", a.scheduleHandler.Update)
			r.Delete("/{scheduleId}", a.scheduleHandler.Delete)
			r.Get("/{scheduleId}/history", a.scheduleHandler.ListExecutionHistory)
			r.Get("/logs/{logId}", a.scheduleHandler.GetExecutionLog)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", a.webhookManagementHandler.List)
			r.Post("/", a.webhookManagementHandler.Create)
			r.Get("/{id}", a.webhookManagementHandler.Get)
			r.Put("/{id}", a.webhookManagementHandler.Update)
			r.Delete("/{id}", a.webhookManagementHandler.Delete)
			r.Post("/{id}/regenerate-secret", a.webhookManagementHandler.RegenerateSecret)
			r.Get("/{id}/latest-request", a.webhookManagementHandler.GetLatestRequest)
			r.Get("/{id}/events", a.webhookManagementHandler.GetEventHistory)
		})

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", a.credentialHandler.List)
			r.Post("/", a.credentialHandler.Create)
			r.Get("/types", a.credentialHandler.GetTypes)
			r.Post("/validate", a.credentialHandler.ValidateType)
			r.Get("/{credentialId}", a.credentialHandler.Get)
			r.Get("/{credentialId}/value", a.credentialHandler.GetValue)
			r.Put("/{credentialId}", a.credentialHandler.Update)
			r.Delete("/{credentialId}", a.credentialHandler.Delete)
			r.Post("/{credentialId}/rotate", a.credentialHandler.Rotate)
			r.Post("/{credentialId}/test", a.credentialHandler.Test)
			r.Get("/{credentialId}/versions", a.credentialHandler.ListVersions)
			r.Get("/{credentialId}/access-log", a.credentialHandler.GetAccessLog)
		})
	})

	// Cron-expression utilities are organization-independent.
	r.Route("/api/v1/schedules", func(r chi.Router) {
		r.Post("/parse-cron", a.scheduleHandler.ParseCron)
		r.Post("/preview", a.scheduleHandler.PreviewSchedule)
	})

	a.router = r
}

// workflowGetterAdapter adapts workflow.Service to schedule.WorkflowGetter,
// avoiding an import cycle between the schedule and workflow packages.
type workflowGetterAdapter struct {
	workflowService *workflow.Service
}

func (w *workflowGetterAdapter) GetByID(ctx context.Context, organizationID, id string) (interface{}, error) {
	return w.workflowService.GetByID(ctx, organizationID, id)
}

// parseHTTPLogLevel maps the server environment to an HTTP access log level:
// verbose in development, quieter in production.
func parseHTTPLogLevel(env string) slog.Level {
	if env == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
