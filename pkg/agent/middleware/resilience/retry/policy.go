// Package retry provides retry logic with exponential backoff for resilient LLM calls.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"triad/pkg/agent/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Delay before the first retry when the error type has none
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   4,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      60 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry retries only errors classified as rate-limit, transient or empty response.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return llmerrors.Classify(err).IsRetryable()
}

// Policy combines retry configuration with error classification.
type Policy struct {
	Classifier Classifier
	sleep      func(ctx context.Context, d time.Duration) error
	Config     Config
}

// NewPolicy creates a policy using ShouldRetry.
func NewPolicy(config Config) *Policy {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{
		Config:     config,
		Classifier: ShouldRetry,
		sleep:      sleepCtx,
	}
}

// ShouldRetry reports whether err is retryable under this policy.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// CalculateDelay returns the backoff before the given attempt (attempt 2 is the first retry).
// The error type's own backoff profile takes precedence over the policy defaults.
func (p *Policy) CalculateDelay(attempt int, err error) time.Duration {
	if attempt <= 1 {
		return 0
	}

	initial := p.Config.InitialDelay
	factor := p.Config.BackoffFactor
	maxDelay := p.Config.MaxDelay
	if rc := llmerrors.Classify(err).RetryConfig(); rc.InitialDelay > 0 {
		initial = rc.InitialDelay
		factor = rc.BackoffFactor
		if rc.MaxDelay > 0 && (maxDelay == 0 || rc.MaxDelay < maxDelay) {
			maxDelay = rc.MaxDelay
		}
	}
	if factor < 1 {
		factor = 1
	}

	delay := float64(initial) * math.Pow(factor, float64(attempt-2))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if p.Config.Jitter && delay > 0 {
		// +/-10%
		delay += delay * 0.1 * (2*rand.Float64() - 1) //nolint:gosec // jitter, not crypto
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // caller wraps
	case <-timer.C:
		return nil
	}
}
