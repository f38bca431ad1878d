package service

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/steerdev/steer/pkg/cancel"
)

// RetryPolicy wraps provider calls in bounded exponential backoff.
// Retriable kinds: network, server 5xx, rate-limited (honoring a
// server-provided delay when present), timeout. Everything else
// surfaces immediately. For budget N the wrapper issues at most N+1
// calls.
type RetryPolicy struct {
	MaxRetries int
	BaseWait   time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the loop default: 3 retries, 2s base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseWait:   2 * time.Second,
		MaxWait:    30 * time.Second,
	}
}

// Do runs call, retrying on retriable provider errors. Cancellation
// during a backoff sleep is observed immediately.
func (p RetryPolicy) Do(token *cancel.Token, logger *zap.Logger, call func() (*CompletionResponse, error)) (*CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.backoff(attempt, lastErr)

			logger.Info("Retrying provider call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", p.MaxRetries),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)

			select {
			case <-time.After(wait):
			case <-token.Done():
				return nil, NewCancelledError("retry")
			}
		}

		resp, err := call()
		if err == nil {
			if attempt > 0 {
				logger.Info("Provider retry succeeded", zap.Int("attempt", attempt))
			}
			return resp, nil
		}

		lastErr = err

		var apiErr *ApiError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}

		logger.Warn("Provider call failed",
			zap.Int("attempt", attempt),
			zap.String("kind", apiErr.Kind.String()),
			zap.Error(err),
		)
	}

	return nil, lastErr
}

// backoff computes the sleep before the given attempt: exponential
// from BaseWait, capped at MaxWait, overridden by a server-provided
// Retry-After on rate limits.
func (p RetryPolicy) backoff(attempt int, lastErr error) time.Duration {
	var apiErr *ApiError
	if errors.As(lastErr, &apiErr) &&
		apiErr.Kind == ErrKindRateLimited && apiErr.RetryAfterSeconds > 0 {
		return time.Duration(apiErr.RetryAfterSeconds) * time.Second
	}

	wait := p.BaseWait * (1 << (attempt - 1))
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}
