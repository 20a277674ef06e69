package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"git.home.luguber.info/inful/relpub/internal/config"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffLinear {
		t.Fatalf("expected linear default mode got %s", p.Mode)
	}
	if p.Initial != time.Second || p.Max != 30*time.Second {
		t.Fatalf("unexpected delays %v/%v", p.Initial, p.Max)
	}
	if p.MaxRetries != 2 || p.Attempts() != 3 {
		t.Fatalf("expected 2 retries / 3 attempts got %d/%d", p.MaxRetries, p.Attempts())
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != config.RetryBackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxRetries != 5 {
		t.Fatalf("expected maxRetries 5 got %d", p.MaxRetries)
	}
}

func TestFromConfig(t *testing.T) {
	retries := 4
	p := FromConfig(config.ExecutionConfig{
		MaxRetries:        &retries,
		RetryBackoff:      config.RetryBackoffExponential,
		RetryInitialDelay: "200ms",
		RetryMaxDelay:     "2s",
	})
	if p.Mode != config.RetryBackoffExponential || p.Initial != 200*time.Millisecond || p.Max != 2*time.Second || p.MaxRetries != 4 {
		t.Fatalf("unexpected policy %+v", p)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		if d := fixed.Delay(i); d != 100*time.Millisecond {
			t.Fatalf("fixed attempt %d expected 100ms got %v", i, d)
		}
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	cases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}, {4, 250 * time.Millisecond}}
	for _, c := range cases {
		if got := linear.Delay(c.attempt); got != c.want {
			t.Fatalf("linear attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}

	exp := NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 50 * time.Millisecond}, {2, 100 * time.Millisecond}, {3, 160 * time.Millisecond}, {64, 160 * time.Millisecond}}
	for _, c := range expCases {
		if got := exp.Delay(c.attempt); got != c.want {
			t.Fatalf("exp attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}
	if d := exp.Delay(0); d != 0 {
		t.Fatalf("attempt 0 expected 0 got %v", d)
	}
}

func TestNewPolicyKeepsDefaultsForUnusableValues(t *testing.T) {
	p := NewPolicy("random", -time.Second, 0, -1)
	if p != DefaultPolicy() {
		t.Fatalf("expected default policy got %+v", p)
	}
	if m := NewPolicy("Exponential", 0, 0, 0).Mode; m != config.RetryBackoffExponential {
		t.Fatalf("expected case-insensitive mode got %s", m)
	}
}

func TestValidate(t *testing.T) {
	if err := (Policy{Initial: 0, Max: time.Second}).Validate(); err == nil {
		t.Fatal("expected error for zero initial")
	}
	if err := (Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}).Validate(); err == nil {
		t.Fatal("expected error for negative retries")
	}
	if err := (Policy{MaxRetries: -1}).Validate(); err == nil || !strings.Contains(err.Error(), "max delay") || !strings.Contains(err.Error(), "max retries") {
		t.Fatalf("expected every problem reported got %v", err)
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

// TestRunnerAttemptsBound checks an always-failing operation runs exactly MaxRetries+1 times.
func TestRunnerAttemptsBound(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		calls := 0
		observed := 0
		r := NewRunner(NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, retries)).
			WithSleep(noSleep).
			WithObserver(func(int, time.Duration, error) { observed++ })
		attempts, err := r.Do(context.Background(), func(context.Context, int) error {
			calls++
			return ferrors.UploadError("503 Service Unavailable").Build()
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != retries+1 || attempts != retries+1 {
			t.Fatalf("retries=%d: calls=%d attempts=%d", retries, calls, attempts)
		}
		if observed != retries {
			t.Fatalf("retries=%d: observer called %d times", retries, observed)
		}
	}
}

func TestRunnerStopsOnNonRetryable(t *testing.T) {
	calls := 0
	r := NewRunner(NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5)).WithSleep(noSleep)
	_, err := r.Do(context.Background(), func(context.Context, int) error {
		calls++
		return ferrors.ConflictError("already published").Build()
	})
	if !ferrors.HasCategory(err, ferrors.CategoryConflict) {
		t.Fatalf("unexpected error %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single call got %d", calls)
	}
}

func TestRunnerSucceedsAfterTransientFailure(t *testing.T) {
	r := NewRunner(NewPolicy(config.RetryBackoffLinear, time.Millisecond, time.Millisecond, 2)).WithSleep(noSleep)
	attempts, err := r.Do(context.Background(), func(_ context.Context, attempt int) error {
		if attempt < 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
}

func TestRunnerHonorsCancellationBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	r := NewRunner(NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 3))
	_, err := r.Do(ctx, func(context.Context, int) error {
		calls++
		return errors.New("boom")
	})
	if err == nil || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}
