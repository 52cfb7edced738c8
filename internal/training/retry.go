package training

import (
	"context"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// maxBackoff caps the exponential backoff between fetch attempts
const maxBackoff = 30 * time.Second

// RetryPolicy bounds an external read
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration // first wait, doubled after each failure
	Timeout  time.Duration // per attempt; zero means no per-attempt deadline
}

// withRetry runs fn until it succeeds, the attempts are used up or ctx ends.
// Exhaustion is reported as *models.DataSourceTimeoutError wrapping the last cause.
func withRetry[T any](ctx context.Context, op string, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var lastErr error
	for i := 1; i <= attempts; i++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		v, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, &models.DataSourceTimeoutError{Op: op, Attempts: i, Err: ctx.Err()}
		}
		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, &models.DataSourceTimeoutError{Op: op, Attempts: i, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return zero, &models.DataSourceTimeoutError{Op: op, Attempts: attempts, Err: lastErr}
}
