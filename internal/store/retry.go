package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// retryWithBackoff retries operation while it fails with a transient
// SQLITE_BUSY-shaped error, doubling the delay each attempt. Once the
// attempt budget is exhausted the last error is wrapped in
// ErrStoreUnavailable; non-transient errors are returned immediately without
// consuming the retry budget.
func retryWithBackoff(ctx context.Context, logger arbor.ILogger, maxAttempts int, initialDelay time.Duration, operation func() error) error {
	var lastErr error
	delay := initialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if !isTransient(lastErr) {
			return lastErr
		}

		if attempt < maxAttempts {
			logger.Warn().
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Str("delay", delay.String()).
				Err(lastErr).
				Msg("store operation contended, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	logger.Error().Int("max_attempts", maxAttempts).Err(lastErr).Msg("store retry budget exhausted")
	return errors.Join(ErrStoreUnavailable, lastErr)
}

// isTransient recognizes the lock-contention / WAL-checkpoint-race error
// text modernc.org/sqlite surfaces for SQLITE_BUSY.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
