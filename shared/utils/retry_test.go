package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pavitra93/gym-tenant-system/shared/apperr"
)

func init() {
	readRetryBaseDelay = time.Millisecond
}

func TestRetryReadRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := RetryRead(context.Background(), 3, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Unavailable(errors.New("connection reset"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryReadGivesUp(t *testing.T) {
	calls := 0
	err := RetryRead(context.Background(), 2, func(ctx context.Context) error {
		calls++
		return apperr.Unavailable(errors.New("timeout"))
	})
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
	assert.Equal(t, 2, calls)
}

func TestRetryReadDoesNotRetryBusinessErrors(t *testing.T) {
	calls := 0
	err := RetryRead(context.Background(), 5, func(ctx context.Context) error {
		calls++
		return apperr.ErrStudentNotFound
	})
	assert.True(t, errors.Is(err, apperr.ErrStudentNotFound))
	assert.Equal(t, 1, calls)
}

func TestRetryReadStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryRead(ctx, 5, func(ctx context.Context) error {
		calls++
		return apperr.Unavailable(errors.New("timeout"))
	})
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, 1, calls)
}
