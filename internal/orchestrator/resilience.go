package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// GuardConfig configures the hardening applied to provider calls.
type GuardConfig struct {
	// Rate limiting
	RateLimit int // calls per minute (0 = disabled)
	RateBurst int

	// Retry configuration
	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// Circuit breaker
	BreakerThreshold   int           // consecutive failures before opening
	BreakerCooldown    time.Duration // how long to stay open
	BreakerMaxRequests int           // requests allowed in half-open

	// CallTimeout bounds each individual attempt (0 = unbounded).
	CallTimeout time.Duration
}

// DefaultGuardConfig returns sensible defaults for provider calls.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RateLimit:          60,
		RateBurst:          10,
		RetryAttempts:      3,
		RetryInitialDelay:  200 * time.Millisecond,
		RetryMaxDelay:      5 * time.Second,
		BreakerThreshold:   5,
		BreakerCooldown:    30 * time.Second,
		BreakerMaxRequests: 3,
		CallTimeout:        30 * time.Second,
	}
}

// Guard wraps Fortify resilience patterns around external provider
// calls. Every provider invocation the executor and pollers make goes
// through one shared Guard, keyed by capability and provider type.
type Guard struct {
	rateLimiter    ratelimit.RateLimiter
	retrier        retry.Retry[any]
	circuitBreaker circuitbreaker.CircuitBreaker[any]
	config         GuardConfig
}

// NewGuard creates a guard with the given configuration.
func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{config: cfg}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = cfg.RateLimit
		}
		g.rateLimiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimit,
			Burst:    burst,
			Interval: time.Minute,
		})
	}

	if cfg.RetryAttempts > 0 {
		g.retrier = retry.New[any](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialDelay,
			MaxDelay:      cfg.RetryMaxDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryableError,
		})
	}

	if cfg.BreakerThreshold > 0 {
		threshold := cfg.BreakerThreshold
		maxRequests := cfg.BreakerMaxRequests
		if maxRequests <= 0 {
			maxRequests = 1
		}
		g.circuitBreaker = circuitbreaker.New[any](circuitbreaker.Config{
			MaxRequests: uint32(maxRequests), // #nosec G115 -- bounded config value
			Interval:    cfg.BreakerCooldown,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		})
	}

	return g
}

// Execute runs the operation with all configured resilience patterns.
// Order: Rate Limit -> Circuit Breaker -> Retry -> Operation.
func (g *Guard) Execute(ctx context.Context, key string, operation func(context.Context) (any, error)) (any, error) {
	if g == nil {
		return operation(ctx)
	}

	attempt := func(ctx context.Context) (any, error) {
		if g.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.config.CallTimeout)
			defer cancel()
		}
		return operation(ctx)
	}

	if g.rateLimiter != nil {
		if err := g.rateLimiter.Wait(ctx, key); err != nil {
			return nil, err
		}
	}

	if g.circuitBreaker != nil {
		return g.circuitBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return g.executeWithRetry(ctx, attempt)
		})
	}

	return g.executeWithRetry(ctx, attempt)
}

func (g *Guard) executeWithRetry(ctx context.Context, operation func(context.Context) (any, error)) (any, error) {
	if g.retrier != nil {
		return g.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// guarded runs a typed operation through the guard. Methods cannot carry
// type parameters, so the typed entry point is a free function.
func guarded[T any](ctx context.Context, g *Guard, key string, operation func(context.Context) (T, error)) (T, error) {
	out, err := g.Execute(ctx, key, func(ctx context.Context) (any, error) {
		return operation(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// BreakerState returns the circuit breaker state: "closed", "half-open",
// "open", or "disabled".
func (g *Guard) BreakerState() string {
	if g == nil || g.circuitBreaker == nil {
		return "disabled"
	}
	return g.circuitBreaker.State().String()
}

// Close releases resources held by the guard.
func (g *Guard) Close() error {
	if g == nil {
		return nil
	}
	if g.rateLimiter != nil {
		return g.rateLimiter.Close()
	}
	return nil
}

// isRetryableError determines if a provider error is worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors end the call, not the provider.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Rate limit responses are retryable
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	// Server errors (5xx) are retryable
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	// Network errors are retryable
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary") {
		return true
	}

	// Client errors (4xx except rate limit) are not
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}

	return true
}
