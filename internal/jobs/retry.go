package jobs

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sellerdesk/sellerdesk/internal/logger"
)

// retry attempt ceiling for transient entity-store errors
const maxRetryAttempts = 4

// WithRetry runs fn with exponential backoff for transient errors. Rate-limit
// errors are not retried here: the runner handles them by widening the
// inter-batch delay. Exhausting the attempts returns the last error.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(100*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
		), maxRetryAttempts), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if IsRateLimited(err) {
			return backoff.Permanent(err)
		}
		logger.WarnWithFields("retrying transient error", map[string]interface{}{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		})
		return err
	}, policy)
}
