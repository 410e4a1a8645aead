package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilienceConfig configures the guard around LLM calls.
type ResilienceConfig struct {
	// RateLimitRPM throttles calls per minute. Zero disables it.
	RateLimitRPM int

	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	// BreakerThreshold is the consecutive failures before the circuit
	// opens; zero disables the breaker.
	BreakerThreshold   int
	BreakerTimeout     time.Duration
	BreakerMaxRequests int
}

// DefaultResilienceConfig returns the defaults for cloud providers.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RateLimitRPM:       60,
		RetryAttempts:      3,
		RetryInitialWait:   500 * time.Millisecond,
		RetryMaxWait:       10 * time.Second,
		BreakerThreshold:   5,
		BreakerTimeout:     30 * time.Second,
		BreakerMaxRequests: 3,
	}
}

// Resilience guards completion calls with rate limiting, a circuit
// breaker and retries, in that order.
type Resilience struct {
	rateLimiter    ratelimit.RateLimiter
	retrier        retry.Retry[string]
	circuitBreaker circuitbreaker.CircuitBreaker[string]
}

// NewResilience builds the guard from its configuration.
func NewResilience(cfg ResilienceConfig) *Resilience {
	r := &Resilience{}

	if cfg.RateLimitRPM > 0 {
		r.rateLimiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitRPM,
			Burst:    cfg.RateLimitRPM * 2,
			Interval: time.Minute,
		})
	}

	if cfg.RetryAttempts > 0 {
		r.retrier = retry.New[string](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialWait,
			MaxDelay:      cfg.RetryMaxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   retryableCompletion,
		})
	}

	if cfg.BreakerThreshold > 0 {
		threshold := uint32(cfg.BreakerThreshold) // #nosec G115 -- bounded config value
		r.circuitBreaker = circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: uint32(cfg.BreakerMaxRequests), // #nosec G115 -- bounded config value
			Interval:    cfg.BreakerTimeout,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	return r
}

// newEnrichmentResilience derives the guard for one backend from the
// enricher config. API backoff starts shorter than the general default
// because completion endpoints answer rate limits quickly.
func newEnrichmentResilience(cfg Config) *Resilience {
	rc := DefaultResilienceConfig()
	rc.RateLimitRPM = cfg.RateLimitRPM
	rc.RetryAttempts = cfg.RetryAttempts
	rc.RetryInitialWait = 200 * time.Millisecond
	if cfg.Timeout > 0 {
		rc.RetryMaxWait = cfg.Timeout
	}
	return NewResilience(rc)
}

// Execute runs one completion call through the guard.
func (r *Resilience) Execute(ctx context.Context, operation func(context.Context) (string, error)) (string, error) {
	if r == nil {
		return operation(ctx)
	}
	if r.rateLimiter != nil {
		if err := r.rateLimiter.Wait(ctx, "notes-enrichment"); err != nil {
			return "", err
		}
	}
	if r.circuitBreaker != nil {
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return r.withRetry(ctx, operation)
		})
	}
	return r.withRetry(ctx, operation)
}

func (r *Resilience) withRetry(ctx context.Context, operation func(context.Context) (string, error)) (string, error) {
	if r.retrier != nil {
		return r.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// BreakerState reports the circuit breaker state, or "disabled".
func (r *Resilience) BreakerState() string {
	if r == nil || r.circuitBreaker == nil {
		return "disabled"
	}
	return r.circuitBreaker.State().String()
}

// Close releases the rate limiter's background resources.
func (r *Resilience) Close() error {
	if r == nil || r.rateLimiter == nil {
		return nil
	}
	return r.rateLimiter.Close()
}

// retryableCompletion classifies SDK errors by message, since the
// provider SDKs do not expose typed status errors uniformly.
func retryableCompletion(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return true
	case strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"):
		return true
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporary"):
		return true
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "404"):
		return false
	}
	return true
}
