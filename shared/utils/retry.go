package utils

import (
	"context"
	"time"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
)

// DefaultReadAttempts is how many times an idempotent read is tried.
const DefaultReadAttempts = 3

var readRetryBaseDelay = 50 * time.Millisecond

// RetryRead runs an idempotent read, retrying transient storage failures
// with exponential backoff. Classified business errors are returned on the
// first attempt. Mutations must not go through here.
func RetryRead(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := readRetryBaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !apperr.IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return apperr.Unavailable(ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
