package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy() *Policy {
	return &Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	wantErr := errors.New("permanent")

	err := Retry(context.Background(), fastPolicy(), func() error {
		attempts++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := fastPolicy()
	policy.MaxAttempts = 100
	policy.InitialInterval = 50 * time.Millisecond

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, policy, func() error {
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.False(t, cb.Open())

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.True(t, cb.Open())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_ClosesAfterProbeSuccess(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("boom") })
	assert.True(t, cb.Open())

	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.False(t, cb.Open())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	time.Sleep(150 * time.Millisecond)

	assert.True(t, rl.Allow())
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)

	rl.Allow()

	start := time.Now()
	err := rl.Wait(context.Background())

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_WaitWithTimeout(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rl.Allow()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
