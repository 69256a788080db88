package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"template-docgen/internal/domain"
)

const defaultRetryDelay = 200 * time.Millisecond

// RetryingClient retries transient model failures (transport errors, 429 and
// 5xx) with exponential backoff. MaxAttempts below 1 means a single attempt.
type RetryingClient struct {
	Client      Client
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger
}

func (r *RetryingClient) Generate(ctx context.Context, prompt string) (string, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := r.BaseDelay
	if base <= 0 {
		base = defaultRetryDelay
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := r.Client.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var serr *domain.ServiceError
		if !errors.As(err, &serr) || !serr.Transient() || attempt == attempts {
			break
		}
		delay := base * time.Duration(1<<(attempt-1))
		logger.Warn("llm.retry", "attempt", attempt, "max_attempts", attempts, "status", serr.Status, "delay_ms", delay.Milliseconds())
		select {
		case <-ctx.Done():
			return "", lastErr
		case <-time.After(delay):
		}
	}
	return "", lastErr
}
