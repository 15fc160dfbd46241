package retry

import (
	"fmt"
	"math/rand/v2"
	"time"

	"git.home.luguber.info/inful/mediapipe/internal/config"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential
	Initial    time.Duration           // base delay ceiling; zero disables waiting
	Max        time.Duration           // cap for growth
	MaxRetries int                     // transport failures tolerated before giving up
}

// DefaultPolicy returns the default policy (fixed, 2s ceiling, 30s cap, 3 retries).
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffFixed, Initial: 2 * time.Second, Max: 30 * time.Second, MaxRetries: 3}
}

// NewPolicy builds a policy from raw config fields; negative or invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial >= 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromFetch derives the download retry policy from the fetch section.
func FromFetch(f config.FetchConfig) (Policy, error) {
	delay, err := f.DelayDuration()
	if err != nil {
		return Policy{}, fmt.Errorf("fetch.delay: %w", err)
	}
	maxDelay := 30 * time.Second
	if delay > maxDelay {
		maxDelay = delay
	}
	return NewPolicy(f.Backoff, delay, maxDelay, f.Retries), nil
}

// Delay returns the backoff ceiling for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 || p.Initial <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		shift := retryCount - 1
		if shift > 30 {
			return p.Max
		}
		d := p.Initial * (1 << shift)
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Jitter returns a uniformly random wait in [0, Delay(retryCount)). A nil
// rnd uses math/rand/v2.
func (p Policy) Jitter(retryCount int, rnd func(n int64) int64) time.Duration {
	ceiling := p.Delay(retryCount)
	if ceiling <= 0 {
		return 0
	}
	if rnd == nil {
		rnd = rand.Int64N
	}
	return time.Duration(rnd(int64(ceiling)))
}

// Exhausted reports whether failures has gone past the retry budget.
func (p Policy) Exhausted(failures int) bool {
	return failures > p.MaxRetries
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial < 0 {
		return fmt.Errorf("initial cannot be negative")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
