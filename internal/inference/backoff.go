package inference

import (
	"math"
	"time"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 1500 * time.Millisecond
	defaultGrowthFactor = 2.0
	defaultCapDelay     = 30 * time.Second
	defaultJitter       = 250 * time.Millisecond
)

// RetryPolicy bounds the invoker's retries on transient errors.
type RetryPolicy struct {
	// MaxAttempts is the upper bound on calls to the service, first call included.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration
	// GrowthFactor multiplies the wait after each further failure.
	GrowthFactor float64
	// CapDelay is the ceiling on any single wait, jitter included.
	CapDelay time.Duration
	// Jitter is the exclusive upper bound of the random amount added to each wait.
	Jitter time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  defaultMaxAttempts,
		BaseDelay:    defaultBaseDelay,
		GrowthFactor: defaultGrowthFactor,
		CapDelay:     defaultCapDelay,
		Jitter:       defaultJitter,
	}
}

// normalized replaces unusable values with defaults. A growth factor below
// one would make waits shrink, so it is raised to one.
func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.GrowthFactor == 0 {
		p.GrowthFactor = d.GrowthFactor
	} else if p.GrowthFactor < 1 {
		p.GrowthFactor = 1
	}
	if p.CapDelay <= 0 {
		p.CapDelay = d.CapDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Backoff returns the wait after failed attempt n (1-based) before jitter:
// min(CapDelay, BaseDelay * GrowthFactor^(n-1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.GrowthFactor, float64(attempt-1))
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay > float64(p.CapDelay) {
		return p.CapDelay
	}
	return time.Duration(delay)
}

// Delay adds jitter to Backoff(attempt) without exceeding CapDelay.
func (p RetryPolicy) Delay(attempt int, jitter time.Duration) time.Duration {
	if jitter < 0 {
		jitter = 0
	}
	d := p.Backoff(attempt)
	if d > p.CapDelay-jitter {
		return p.CapDelay
	}
	return d + jitter
}
