package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryableCompletion(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"server error", errors.New("status 503 service unavailable"), true},
		{"connection", errors.New("connection refused"), true},
		{"unauthorized", errors.New("status 401 unauthorized"), false},
		{"bad request", errors.New("status 400 bad request"), false},
		{"unknown", errors.New("something odd"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryableCompletion(tc.err); got != tc.want {
				t.Errorf("retryableCompletion(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	r := NewResilience(ResilienceConfig{
		RetryAttempts:    3,
		RetryInitialWait: time.Millisecond,
		RetryMaxWait:     5 * time.Millisecond,
	})
	defer r.Close()

	attempts := 0
	out, err := r.Execute(context.Background(), func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("503 service unavailable")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "ok" || attempts != 3 {
		t.Errorf("out = %q, attempts = %d", out, attempts)
	}
}

func TestExecuteDoesNotRetryTerminalFailures(t *testing.T) {
	r := NewResilience(ResilienceConfig{
		RetryAttempts:    3,
		RetryInitialWait: time.Millisecond,
		RetryMaxWait:     5 * time.Millisecond,
	})
	defer r.Close()

	attempts := 0
	_, err := r.Execute(context.Background(), func(context.Context) (string, error) {
		attempts++
		return "", errors.New("status 401 unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := NewResilience(ResilienceConfig{
		BreakerThreshold:   2,
		BreakerTimeout:     time.Minute,
		BreakerMaxRequests: 1,
	})
	defer r.Close()

	boom := errors.New("status 401 unauthorized")
	for i := 0; i < 2; i++ {
		if _, err := r.Execute(context.Background(), func(context.Context) (string, error) {
			return "", boom
		}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if r.BreakerState() != "open" {
		t.Errorf("breaker state = %q, want open", r.BreakerState())
	}

	// An open breaker rejects without invoking the operation.
	called := false
	if _, err := r.Execute(context.Background(), func(context.Context) (string, error) {
		called = true
		return "ok", nil
	}); err == nil {
		t.Fatal("expected rejection from open breaker")
	}
	if called {
		t.Error("operation ran despite open breaker")
	}
}

func TestNilResilienceRunsOperation(t *testing.T) {
	var r *Resilience
	out, err := r.Execute(context.Background(), func(context.Context) (string, error) {
		return "direct", nil
	})
	if err != nil || out != "direct" {
		t.Errorf("out = %q, err = %v", out, err)
	}
	if r.BreakerState() != "disabled" {
		t.Errorf("nil breaker state = %q", r.BreakerState())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}
