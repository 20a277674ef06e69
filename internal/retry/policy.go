package retry

import (
	"errors"
	"time"

	"git.home.luguber.info/inful/relpub/internal/config"
)

const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	// Doubling past this many retries overflows time.Duration for any
	// realistic initial delay.
	maxDoublings = 30
)

// Policy bounds how often and how patiently a step is re-run. The zero value
// is not usable; build one with NewPolicy or FromConfig.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultPolicy is linear backoff from one second, capped at thirty, with the
// descriptor's default retry count.
func DefaultPolicy() Policy {
	return Policy{
		Mode:       config.RetryBackoffLinear,
		Initial:    defaultInitialDelay,
		Max:        defaultMaxDelay,
		MaxRetries: config.DefaultMaxRetries,
	}
}

// NewPolicy overlays the given values on DefaultPolicy. Non-positive delays,
// negative retry counts and unknown modes keep the default. An initial delay
// above the cap is lowered to the cap.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if m := config.NormalizeRetryBackoff(string(mode)); m != "" {
		p.Mode = m
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	p.Initial = min(p.Initial, p.Max)
	return p
}

// FromConfig reads the execution block of the descriptor.
func FromConfig(ex config.ExecutionConfig) Policy {
	return NewPolicy(ex.RetryBackoff, ex.InitialDelay(), ex.MaxDelay(), ex.Retries())
}

// Attempts counts the first try as well as every retry.
func (p Policy) Attempts() int { return p.MaxRetries + 1 }

// Delay is the pause before retry n, where n starts at 1. It never exceeds Max.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffExponential:
		if n > maxDoublings {
			return p.Max
		}
		d = p.Initial << (n - 1)
	default:
		d = p.Initial * time.Duration(n)
	}
	if d <= 0 || d > p.Max {
		return p.Max
	}
	return d
}

// Validate reports every setting that makes the policy unusable.
func (p Policy) Validate() error {
	var errs []error
	if p.Initial <= 0 {
		errs = append(errs, errors.New("initial delay must be positive"))
	}
	if p.Max <= 0 {
		errs = append(errs, errors.New("max delay must be positive"))
	}
	if p.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries must not be negative"))
	}
	return errors.Join(errs...)
}
