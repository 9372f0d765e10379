package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"valid", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"max below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("fatal")
	rp := &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, transient) },
	}

	t.Run("retries transient errors until exhausted", func(t *testing.T) {
		attempts := 0
		err := rp.do(context.Background(), func() error {
			attempts++
			return transient
		})
		if !errors.Is(err, transient) || attempts != 3 {
			t.Errorf("do() = %v after %d attempts", err, attempts)
		}
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		attempts := 0
		err := rp.do(context.Background(), func() error {
			attempts++
			return fatal
		})
		if !errors.Is(err, fatal) || attempts != 1 {
			t.Errorf("do() = %v after %d attempts", err, attempts)
		}
	})

	t.Run("nil policy runs once", func(t *testing.T) {
		var nilPolicy *RetryPolicy
		attempts := 0
		_ = nilPolicy.do(context.Background(), func() error {
			attempts++
			return transient
		})
		if attempts != 1 {
			t.Errorf("attempts = %d", attempts)
		}
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		slow := &RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Retryable: rp.Retryable}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := slow.do(ctx, func() error { return transient })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("do() = %v, want context.Canceled", err)
		}
	})
}

func TestComputeBackoff(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		d := computeBackoff(attempt, base, 50*time.Millisecond)
		if d < base || d > 60*time.Millisecond {
			t.Errorf("attempt %d: delay %v out of range", attempt, d)
		}
	}
	if computeBackoff(3, 0, time.Second) != 0 {
		t.Error("zero base should mean no delay")
	}

	t.Run("large attempts stay at the cap", func(t *testing.T) {
		base := time.Millisecond
		for _, attempt := range []int{30, 44, 60, 63, 200} {
			d := computeBackoff(attempt, base, time.Hour)
			if d < time.Hour || d > time.Hour+base {
				t.Errorf("attempt %d: delay %v, want the 1h cap plus jitter", attempt, d)
			}
		}
	})

	t.Run("uncapped does not overflow", func(t *testing.T) {
		if d := computeBackoff(80, time.Second, 0); d <= 0 {
			t.Errorf("delay %v, want positive", d)
		}
	})
}
