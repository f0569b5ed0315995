package database

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxStorageRetries = 4

// WithRetry runs op, retrying lock-contention failures with exponential
// backoff up to a small fixed attempt count. Any other error, or exhaustion,
// is surfaced as fatal for the current cycle.
func WithRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(100*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
		),
		maxStorageRetries,
	), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isContention(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func isContention(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not obtain lock") ||
		strings.Contains(msg, "lock timeout")
}
