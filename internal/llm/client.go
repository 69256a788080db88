// Package llm talks to the generative-language model that turns template text
// into a TemplateSchema, and validates what comes back.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client sends one prompt and returns the model's raw text. Failures are
// reported as *domain.ServiceError.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

type Options struct {
	Provider    Provider
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Logger      *slog.Logger
}

// New builds the configured provider wrapped in a RetryingClient.
func New(ctx context.Context, opts Options) (Client, error) {
	var (
		base Client
		err  error
	)
	switch Provider(strings.ToLower(string(opts.Provider))) {
	case ProviderGemini, "":
		base, err = NewGeminiClient(ctx, GeminiConfig{
			APIKey:  opts.APIKey,
			Model:   opts.Model,
			BaseURL: opts.BaseURL,
			Timeout: opts.Timeout,
			Logger:  opts.Logger,
		})
	case ProviderOpenAI:
		base = NewOpenAIClient(OpenAIConfig{
			APIKey:  opts.APIKey,
			Model:   opts.Model,
			BaseURL: opts.BaseURL,
			Timeout: opts.Timeout,
			Logger:  opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &RetryingClient{
		Client:      base,
		MaxAttempts: opts.MaxAttempts,
		Logger:      opts.Logger,
	}, nil
}
