package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"template-docgen/internal/domain"
)

const (
	defaultHTTPPort        = "8080"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "template-docgen-task-queue"
	defaultLLMProvider     = "gemini"
	defaultGeminiModel     = "gemini-2.0-flash"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultLLMTimeout      = 30
	defaultLLMMaxAttempts  = 3
	defaultMinioEndpoint   = "localhost:9000"
	defaultMinioBucket     = "templates"
	defaultOutputDir       = "storage/output"
	defaultMatchThreshold  = 0.5
)

type Config struct {
	HTTPPort           string
	PostgresDSN        string
	TemporalAddress    string
	TemporalNamespace  string
	TemporalTaskQueue  string
	WorkflowIDPrefix   string
	LLMProvider        string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	LLMTimeoutSec      int
	LLMMaxAttempts     int
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	AllowedUploadBytes int64
	OutputDir          string
	MatchThreshold     float64
	PlaceholderPolicy  domain.PlaceholderPolicy
	LogLevel           string
	LogFormat          string
	IntakeEnabled      bool
}

// Load reads configuration from the environment after applying an optional
// .env file from the working directory (or the files named in envFiles).
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		HTTPPort:           getenv("HTTP_PORT", defaultHTTPPort),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		TemporalAddress:    getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace:  getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue:  getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		WorkflowIDPrefix:   getenv("WORKFLOW_ID_PREFIX", "docgen"),
		LLMProvider:        strings.ToLower(getenv("LLM_PROVIDER", defaultLLMProvider)),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getenv("GEMINI_MODEL", defaultGeminiModel),
		GeminiBaseURL:      os.Getenv("GEMINI_BASE_URL"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getenv("OPENAI_MODEL", defaultOpenAIModel),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		LLMTimeoutSec:      getenvInt("LLM_TIMEOUT_SEC", defaultLLMTimeout),
		LLMMaxAttempts:     getenvInt("LLM_MAX_ATTEMPTS", defaultLLMMaxAttempts),
		MinioEndpoint:      getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getenv("MINIO_BUCKET", defaultMinioBucket),
		MinioUseSSL:        getenvBool("MINIO_USE_SSL", false),
		AllowedUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		OutputDir:          getenv("OUTPUT_DIR", defaultOutputDir),
		MatchThreshold:     getenvFloat("MATCH_THRESHOLD", defaultMatchThreshold),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
		IntakeEnabled:      getenvBool("INTAKE_ENABLED", true),
	}

	policy, ok := domain.ParsePlaceholderPolicy(strings.ToLower(os.Getenv("PLACEHOLDER_POLICY")))
	if !ok {
		return Config{}, fmt.Errorf("PLACEHOLDER_POLICY must be %q or %q", domain.PolicyStrip, domain.PolicyFail)
	}
	cfg.PlaceholderPolicy = policy

	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 1 {
		return Config{}, fmt.Errorf("MATCH_THRESHOLD must be within [0,1], got %v", cfg.MatchThreshold)
	}
	if cfg.LLMProvider != "gemini" && cfg.LLMProvider != "openai" {
		return Config{}, fmt.Errorf("LLM_PROVIDER must be gemini or openai, got %q", cfg.LLMProvider)
	}

	return cfg, nil
}

// RequireRecordStore fails when the binary needs postgres but no DSN is set.
func (c Config) RequireRecordStore() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	return nil
}

// RequireLLM fails when the selected provider has no API key.
func (c Config) RequireLLM() error {
	if c.LLMAPIKey() == "" {
		return fmt.Errorf("%s_API_KEY is required for LLM_PROVIDER=%s", strings.ToUpper(c.LLMProvider), c.LLMProvider)
	}
	return nil
}

func (c Config) LLMAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func (c Config) LLMModel() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

func (c Config) LLMBaseURL() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIBaseURL
	}
	return c.GeminiBaseURL
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
