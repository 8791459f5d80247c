package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy decides how often and how long to wait before a transient
// failure is retried.
type RetryPolicy struct {
	MaxRetries  int           // Attempts allowed before a job fails for good
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Upper bound on any single delay, 0 for none
	Exponential bool          // Double the delay after every attempt
	Jitter      float64       // Randomization factor in [0, 1)
}

// DefaultRetryPolicy returns three attempts with exponential delays from five seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
		Exponential: true,
		Jitter:      0.2,
	}
}

// ShouldRetry reports whether a job that has made attempts attempts and
// failed with kind gets another one.
func (p RetryPolicy) ShouldRetry(kind ErrorKind, attempts int) bool {
	return kind == KindTransient && attempts < p.MaxRetries
}

// Delay returns the wait before the retry that follows attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	multiplier := 1.0
	if p.Exponential {
		multiplier = 2.0
	}
	maxInterval := p.MaxDelay
	if maxInterval <= 0 {
		maxInterval = time.Duration(1<<63 - 1)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.BaseDelay),
		backoff.WithMultiplier(multiplier),
		backoff.WithRandomizationFactor(p.Jitter),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
