package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", maxFailures, reset)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }

	assert.Equal(t, boom, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, boom, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, "boom", cb.Snapshot().LastError)
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	assert.Equal(t, StateOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().Failures)
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb, now := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	}
	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return nil }), context.Canceled)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
