package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/typeflow/typeflow/internal/config"
	"github.com/typeflow/typeflow/internal/credential"
	"github.com/typeflow/typeflow/internal/executor"
	"github.com/typeflow/typeflow/internal/executor/javascript"
	"github.com/typeflow/typeflow/internal/schedule"
	"github.com/typeflow/typeflow/internal/tracing"
	"github.com/typeflow/typeflow/internal/webhook"
	"github.com/typeflow/typeflow/internal/worker"
	"github.com/typeflow/typeflow/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	tracingCleanup, err := tracing.InitGlobalTracer(context.Background(), &cfg.Observability)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer tracingCleanup()

	if cfg.Observability.TracingEnabled {
		slog.Info("distributed tracing enabled",
			"endpoint", cfg.Observability.TracingEndpoint,
			"service_name", cfg.Observability.TracingServiceName,
			"sample_rate", cfg.Observability.TracingSampleRate,)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlx.Connect("postgres", cfg.Database.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	workflowRepo := workflow.NewRepository(db)
	scheduleRepo := schedule.NewRepository(db)

	workflowService := workflow.NewService(workflowRepo, logger)
	scheduleService := schedule.NewService(scheduleRepo, logger)

	workflowGetter := &workflowServiceAdapter{workflowService: workflowService}
	scheduleService.SetWorkflowService(workflowGetter)

	// Credential service, shared by the graph executor's $credentials handle
	// resolver, mirrors the API process's wiring exactly.
	credentialRepo := credential.NewRepository(db)
	var encryptionService credential.EncryptionServiceInterface
	if cfg.Credential.UseKMS {
		if cfg.Credential.KMSKeyID == "" {
			slog.Error("CREDENTIAL_KMS_KEY_ID is required when USE_KMS is true")
			os.Exit(1)
		}
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(cfg.Credential.KMSRegion))
		if err != nil {
			slog.Error("failed to load AWS config for KMS", "error", err)
			os.Exit(1)
		}
		kmsClient := kms.NewFromConfig(awsCfg)
		kmsEncryptionService, err := credential.NewKMSEncryptionService(kmsClient, cfg.Credential.KMSKeyID)
		if err != nil {
			slog.Error("failed to create KMS encryption service", "error", err)
			os.Exit(1)
		}
		encryptionService = credential.NewKMSEncryptionAdapter(kmsEncryptionService)
		logger.Info("credential encryption initialized", "mode", "KMS", "key_id", cfg.Credential.KMSKeyID, "region", cfg.Credential.KMSRegion)
	} else {
		masterKey, err := base64.StdEncoding.DecodeString(cfg.Credential.MasterKey)
		if err != nil {
			slog.Error("failed to decode credential master key", "error", err)
			os.Exit(1)
		}
		simpleEncryption, err := credential.NewSimpleEncryptionService(masterKey)
		if err != nil {
			slog.Error("failed to create simple encryption service", "error", err)
			os.Exit(1)
		}
		encryptionService = credential.NewSimpleEncryptionAdapter(simpleEncryption)
		logger.Warn("credential encryption initialized", "mode", "simple", "warning", "use KMS in production")
	}
	credentialService := credential.NewServiceImpl(credentialRepo, encryptionService, logger)
	credentialResolver := credential.NewHandleResolver(credentialService, logger)

	jsEngine, err := javascript.NewEngine(javascript.DefaultEngineConfig())
	if err != nil {
		slog.Error("failed to initialize javascript engine", "error", err)
		os.Exit(1)
	}

	graphExecutor := executor.New(workflowRepo, jsEngine, credentialResolver, logger)
	workflowService.SetExecutor(executor.RunTriggerAdapter{Executor: graphExecutor})

	executorAdapter := schedule.NewWorkflowServiceAdapter(func(ctx context.Context, organizationID, workflowID, triggerType string, triggerData []byte) (string, error) {
		result, err := workflowService.Trigger(ctx, organizationID, workflowID, triggerType, triggerData)
		if err != nil {
			return "", err
		}
		if result.Queued {
			return result.JobID, nil
		}
		return result.Execution.ID, nil
	})

	scheduler := schedule.NewScheduler(scheduleService, executorAdapter, logger)

	var cleanupScheduler *webhook.CleanupScheduler
	if cfg.Cleanup.Enabled {
		webhookRepo := webhook.NewRepository(db)
		retentionPeriod := time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour
		cleanupService := webhook.NewCleanupService(webhookRepo, cfg.Cleanup.BatchSize, retentionPeriod)
		cleanupScheduler = webhook.NewCleanupScheduler(cleanupService, cfg.Cleanup.Schedule, logger)
	}

	w, err := worker.New(cfg, graphExecutor, workflowRepo, db, logger)
	if err != nil {
		slog.Error("failed to initialize worker", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	healthServer := worker.NewHealthServer(w, cfg.Worker.HealthPort)
	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("starting workflow scheduler")
		if err := scheduler.Start(ctx); err != nil {
			slog.Error("scheduler error", "error", err)
		}
	}()

	if cleanupScheduler != nil {
		go func() {
			slog.Info("starting cleanup scheduler",
				"retention_days", cfg.Cleanup.RetentionDays,
				"batch_size", cfg.Cleanup.BatchSize,
				"schedule", cfg.Cleanup.Schedule,)
			if err := cleanupScheduler.Start(ctx); err != nil {
				slog.Error("cleanup scheduler error", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("starting workflow worker", "concurrency", cfg.Worker.Concurrency)
		if err := w.Start(ctx); err != nil {
			slog.Error("worker error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker, scheduler, and cleanup scheduler...")
	cancel()

	scheduler.Stop()

	if cleanupScheduler != nil {
		cleanupScheduler.Stop()
	}

	w.Wait()

	slog.Info("worker, scheduler, and cleanup scheduler stopped")
}

// workflowServiceAdapter adapts workflow.Service to schedule.WorkflowGetter.
type workflowServiceAdapter struct {
	workflowService *workflow.Service
}

func (w *workflowServiceAdapter) GetByID(ctx context.Context, organizationID, id string) (interface{}, error) {
	return w.workflowService.GetByID(ctx, organizationID, id)
}
