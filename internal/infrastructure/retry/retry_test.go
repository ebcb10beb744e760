package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int

	err := Do(context.Background(), Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		OnRetry: func(attempt int, _ error, _ time.Duration) {
			retried = append(retried, attempt)
		},
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 4, InitialDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return errFlaky
	})

	if !errors.Is(err, errFlaky) {
		t.Fatalf("Do() error = %v, want wrapped errFlaky", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDo_SingleAttemptReturnsErrorUnwrapped(t *testing.T) {
	for _, p := range []Policy{Once(), {MaxAttempts: 0}} {
		calls := 0
		err := Do(context.Background(), p, func(context.Context) error {
			calls++
			return errFlaky
		})
		if err != errFlaky { //nolint:errorlint // exact identity expected
			t.Errorf("Do() error = %v, want errFlaky itself", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	if err != errFlaky { //nolint:errorlint // Permanent is unwrapped by Do
		t.Errorf("Do() error = %v, want errFlaky", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if !errors.Is(err, errFlaky) {
		t.Errorf("Do() error = %v, want it to carry the last attempt error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_InvalidPolicy(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
	}{
		{"negative initial delay", Policy{InitialDelay: -time.Second}},
		{"negative multiplier", Policy{Multiplier: -1}},
		{"max below initial", Policy{InitialDelay: time.Second, MaxDelay: time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Do(context.Background(), tt.p, func(context.Context) error { return nil })
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("Do() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), Policy{MaxAttempts: 2}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "session", nil
	})
	if err != nil {
		t.Fatalf("DoValue() error = %v", err)
	}
	if v != "session" {
		t.Errorf("DoValue() = %q, want session", v)
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		current    time.Duration
		multiplier float64
		ceiling    time.Duration
		want       time.Duration
	}{
		{time.Second, 2, 10 * time.Second, 2 * time.Second},
		{8 * time.Second, 2, 10 * time.Second, 10 * time.Second},
		{time.Second, 1.5, 0, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := nextDelay(tt.current, tt.multiplier, tt.ceiling); got != tt.want {
			t.Errorf("nextDelay(%v, %v, %v) = %v, want %v", tt.current, tt.multiplier, tt.ceiling, got, tt.want)
		}
	}
}
