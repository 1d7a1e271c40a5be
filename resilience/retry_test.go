package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		RetryIf:      IsRetryable,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryWithConfig(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errUpstream
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	bad := errors.New("400 bad request")
	err := RetryWithConfig(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(bad)
	})
	if !errors.Is(err, bad) {
		t.Fatalf("expected wrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestRetryReportsMaxRetriesExceeded(t *testing.T) {
	err := RetryWithConfig(context.Background(), fastConfig(2), func() error {
		return errUpstream
	})

	var maxErr ErrMaxRetriesExceeded
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %T %v", err, err)
	}
	if maxErr.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", maxErr.Attempts)
	}
	if !errors.Is(err, errUpstream) {
		t.Errorf("expected last error to unwrap")
	}
}

func TestRetryHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialDelay = time.Second

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RetryWithConfig(ctx, cfg, func() error {
		calls++
		return errUpstream
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded is not retryable")
	}
	if IsRetryable(ErrCircuitOpen) {
		t.Error("open circuit is not retryable")
	}
	if !IsRetryable(errUpstream) {
		t.Error("plain errors are retryable")
	}
}
