package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds an optimistic-concurrency retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy is used for review appends.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		BaseWait:    2 * time.Millisecond,
		MaxWait:     200 * time.Millisecond,
	}
}

const retryJitterFraction = 0.25

// errRetriesExhausted wraps the last retryable error after MaxAttempts.
var errRetriesExhausted = errors.New("retries exhausted")

// backoff returns BaseWait<<attempt capped at MaxWait, with ±25% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.BaseWait << attempt
	if wait <= 0 || wait > p.MaxWait {
		wait = p.MaxWait
	}
	jitter := time.Duration(float64(wait) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter
	return wait + jitter
}

// retry calls fn until it returns an error that retryable rejects, nil, or
// MaxAttempts is reached. It stops early when ctx is done.
func retry(ctx context.Context, p RetryPolicy, logger *slog.Logger, what string, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := p.backoff(attempt)
		logger.WarnContext(ctx, "retrying after conflict",
			slog.String("operation", what),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s after %d attempts: %w: %w", what, attempts, errRetriesExhausted, err)
}
