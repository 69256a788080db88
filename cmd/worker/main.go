package main

import (
	"context"
	"log"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"template-docgen/internal/config"
	"template-docgen/internal/extraction"
	"template-docgen/internal/llm"
	"template-docgen/internal/logging"
	"template-docgen/internal/render"
	"template-docgen/internal/storage"
	appTemporal "template-docgen/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.RequireRecordStore(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireLLM(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("postgres schema: %v", err)
	}

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		log.Fatalf("connect minio: %v", err)
	}

	model, err := llm.New(context.Background(), llm.Options{
		Provider:    llm.Provider(cfg.LLMProvider),
		APIKey:      cfg.LLMAPIKey(),
		Model:       cfg.LLMModel(),
		BaseURL:     cfg.LLMBaseURL(),
		Timeout:     cfg.LLMTimeout(),
		MaxAttempts: cfg.LLMMaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("llm client: %v", err)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	activities := &appTemporal.Activities{
		Templates: blob,
		Outputs:   blob,
		Records:   store,
		Intake:    store,
		Extractor: extraction.New(model, logger),
		Generator: render.New(cfg.PlaceholderPolicy, logger),
		OutputDir: cfg.OutputDir,
		Logger:    logger,
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.TemplateIntakeWorkflow, workflow.RegisterOptions{Name: appTemporal.TemplateIntakeWorkflowName})
	w.RegisterWorkflowWithOptions(appTemporal.GenerateFromRecordWorkflow, workflow.RegisterOptions{Name: appTemporal.GenerateFromRecordWorkflowName})
	w.RegisterActivity(activities.RecordIntakeActivity)
	w.RegisterActivity(activities.ExtractSchemaActivity)
	w.RegisterActivity(activities.MapRecordActivity)
	w.RegisterActivity(activities.RenderAndStoreActivity)

	logger.Info("worker.running", "task_queue", cfg.TemporalTaskQueue, "llm_provider", cfg.LLMProvider)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker stopped with error: %v", err)
	}
}
