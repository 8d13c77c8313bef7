package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear waits base, 2*base, 3*base...
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Exponential waits base, 2*base, 4*base...
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(1<<uint(attempt-1))
	}
}

// ErrPermanent stops Retry early when wrapped into the returned error.
var ErrPermanent = errors.New("permanent failure")

// Retry runs fn up to maxAttempts times, sleeping between attempts according
// to backoff. fn receives the 1-based attempt number. The last error is
// returned wrapped once every attempt has failed.
//
//	err := utils.Retry(ctx, 3, utils.Linear(2*time.Second), func(attempt int) error {
//	    return load(url)
//	})
func Retry(ctx context.Context, maxAttempts int, backoff Backoff, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}

		if attempt < maxAttempts && backoff != nil {
			if err := Sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", maxAttempts, lastErr)
}
