package core

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRetryMaxAttempts    = 3
	defaultRetryInitialBackoff = time.Second
	defaultRetryMaxBackoff     = 30 * time.Second
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRetryInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRetryMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type RetryOptions struct {
	MaxAttempts int
	Backoff     BackoffScheduler
	// OnExhausted runs once after the final attempt fails, before the
	// error propagates. Used to notify the reviewer of the failure.
	OnExhausted func(ctx context.Context, attempts int, err error)
}

type RetryResult struct {
	Attempts int
}

// RunWithRetry executes op with bounded exponential backoff. Only
// transient failures are retried; auth/permission and validation
// failures surface immediately. Operations must be idempotent or
// side-effect-safe under retry.
func RunWithRetry(ctx context.Context, op func(ctx context.Context) error, opts RetryOptions) (RetryResult, error) {
	if op == nil {
		return RetryResult{}, fmt.Errorf("core: retry operation is required")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRetryMaxAttempts
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = ExponentialBackoffScheduler{}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return RetryResult{Attempts: attempt}, nil
		}
		lastErr = err

		if !IsTransientExternal(err) {
			if opts.OnExhausted != nil {
				opts.OnExhausted(ctx, attempt, err)
			}
			return RetryResult{Attempts: attempt}, err
		}
		if attempt == maxAttempts {
			break
		}
		if waitErr := waitWithContext(ctx, backoff.NextDelay(attempt)); waitErr != nil {
			return RetryResult{Attempts: attempt}, waitErr
		}
	}

	if opts.OnExhausted != nil {
		opts.OnExhausted(ctx, maxAttempts, lastErr)
	}
	return RetryResult{Attempts: maxAttempts}, lastErr
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
