package utils

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *Logger
}

// Do executes fn with exponential back-off retry logic. It gives up early
// when ctx is done; the context error is returned in that case.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "%s cancelled", operationName)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < attempts {
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
					operationName, attempt, attempts, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return eris.Wrapf(ctx.Err(), "%s cancelled", operationName)
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return eris.Wrapf(lastErr, "%s failed after %d attempts", operationName, attempts)
}
