package retry

import (
	"context"
	"time"

	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// Operation is one attempt of a retried unit of work. attempt is 1-based.
type Operation func(ctx context.Context, attempt int) error

// Observer is told about every failed attempt that will be retried.
type Observer func(attempt int, delay time.Duration, err error)

// Runner executes operations under a Policy.
type Runner struct {
	policy   Policy
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRunner returns a Runner using real timers.
func NewRunner(p Policy) *Runner {
	return &Runner{policy: p, sleep: sleepContext}
}

// WithObserver sets the callback invoked before each retry.
func (r *Runner) WithObserver(o Observer) *Runner {
	c := *r
	c.observer = o
	return &c
}

// WithSleep replaces the delay function; tests use it to skip waiting.
func (r *Runner) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Runner {
	c := *r
	c.sleep = sleep
	return &c
}

// Policy returns the runner's policy.
func (r *Runner) Policy() Policy { return r.policy }

// Do runs op until it succeeds, returns a non-retryable error, or the policy's
// attempt budget is exhausted. It returns the number of attempts made and the
// last error.
func (r *Runner) Do(ctx context.Context, op Operation) (int, error) {
	var lastErr error
	attempts := r.policy.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !ferrors.IsRetryable(lastErr) || attempt == attempts {
			return attempt, lastErr
		}
		delay := r.policy.Delay(attempt)
		if r.observer != nil {
			r.observer(attempt, delay, lastErr)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return attempt, lastErr
		}
	}
	return attempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
