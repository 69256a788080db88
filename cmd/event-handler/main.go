package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"template-docgen/internal/config"
	"template-docgen/internal/events"
	"template-docgen/internal/logging"
	"template-docgen/internal/storage"
	appTemporal "template-docgen/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if !cfg.IntakeEnabled {
		logger.Info("event_handler.disabled", "reason", "INTAKE_ENABLED=false")
		return
	}

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		log.Fatalf("connect minio: %v", err)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	source := events.NewMinioTemplateEventSource(blob.Client(), blob.Bucket(), storage.TemplatePrefix, storage.TemplateSuffix, logger)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("event_handler.listening", "bucket", cfg.MinioBucket, "prefix", storage.TemplatePrefix)
	err = source.Run(ctx, func(parent context.Context, event events.TemplateEvent) error {
		workflowID := appTemporal.IntakeWorkflowID(cfg.WorkflowIDPrefix, event.TemplateID)
		execCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()

		_, startErr := temporalClient.ExecuteWorkflow(execCtx, client.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: cfg.TemporalTaskQueue,
		}, appTemporal.TemplateIntakeWorkflowName, appTemporal.TemplateIntakeInput{
			TemplateID: event.TemplateID,
		})
		if startErr != nil {
			var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(startErr, &alreadyStarted) {
				logger.Info("event_handler.already_started", "object", event.ObjectKey, "workflow_id", workflowID)
				return nil
			}
			return fmt.Errorf("start intake workflow for object %s: %w", event.ObjectKey, startErr)
		}

		logger.Info("event_handler.started", "workflow_id", workflowID, "object", event.ObjectKey)
		return nil
	})
	if err != nil {
		log.Fatalf("event-handler stopped with error: %v", err)
	}
}
