package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Policy controls Retry.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Retry runs fn up to MaxAttempts times with exponential backoff between
// attempts. Returns the last error, or ctx.Err() if the context ends first.
func Retry(ctx context.Context, policy *Policy, fn func() error) error {
	interval := policy.InitialInterval

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * policy.Multiplier)
		if interval > policy.MaxInterval {
			interval = policy.MaxInterval
		}
	}

	return lastErr
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker trips open after maxFailures consecutive failures and
// stays open for cooldown before allowing a probe call through.
type CircuitBreaker struct {
	maxFailures uint32
	cooldown    time.Duration

	mu           sync.Mutex
	state        breakerState
	failures     uint32
	lastFailTime time.Time
}

func NewCircuitBreaker(maxFailures uint32, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       stateClosed,
	}
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == stateOpen {
		if time.Since(cb.lastFailTime) <= cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = stateHalfOpen
		cb.failures = 0
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()
		if cb.failures >= cb.maxFailures || cb.state == stateHalfOpen {
			cb.state = stateOpen
		}
		return err
	}

	cb.state = stateClosed
	cb.failures = 0
	return nil
}

// Open reports whether the breaker is currently rejecting calls.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen && time.Since(cb.lastFailTime) <= cb.cooldown
}

// RateLimiter is a token bucket refilled at one token per interval,
// holding at most burst tokens.
type RateLimiter struct {
	burst    int
	interval time.Duration

	mu       sync.Mutex
	tokens   int
	lastTime time.Time
}

func NewRateLimiter(burst int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		burst:    burst,
		interval: interval,
		tokens:   burst,
		lastTime: time.Now(),
	}
}

func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	refill := int(now.Sub(rl.lastTime) / rl.interval)
	if refill > 0 {
		rl.tokens += refill
		if rl.tokens > rl.burst {
			rl.tokens = rl.burst
		}
		rl.lastTime = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.interval):
		}
	}
}
