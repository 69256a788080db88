package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"template-docgen/internal/api"
	"template-docgen/internal/config"
	"template-docgen/internal/extraction"
	"template-docgen/internal/llm"
	"template-docgen/internal/logging"
	"template-docgen/internal/render"
	"template-docgen/internal/storage"
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
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("postgres ping: %v", err)
	}
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

	// Job endpoints answer 503 while no Temporal frontend is reachable.
	var workflows api.WorkflowClient
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Warn("api.temporal.unavailable", "address", cfg.TemporalAddress, "error", err)
	} else {
		defer temporalClient.Close()
		workflows = temporalClient
	}

	h := api.NewHandler(cfg, api.Dependencies{
		Templates: blob,
		Outputs:   blob,
		Records:   store,
		Extractor: extraction.New(model, logger),
		Generator: render.New(cfg.PlaceholderPolicy, logger),
		Workflows: workflows,
		Logger:    logger,
	})
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api.listening", "port", cfg.HTTPPort, "llm_provider", cfg.LLMProvider, "placeholder_policy", string(cfg.PlaceholderPolicy))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api.shutdown_failed", "error", err)
	}
}
