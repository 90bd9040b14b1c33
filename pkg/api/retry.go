package api

import "time"

// RetryPolicy controls how a failed change notification is retried.
// MaxAttempts includes the first attempt. For example:
//
//	MaxAttempts = 1 => no retries (just the initial delivery)
//	MaxAttempts = 3 => initial delivery + up to 2 retries
//
// InitialBackoff is the delay before the first retry. Each further retry
// multiplies the delay by BackoffMultiplier (2.0 when <= 0), capped at
// MaxBackoff when that is > 0. A zero InitialBackoff retries immediately.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Attempts returns MaxAttempts, treating values <= 0 as 1.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns how long to wait before the given attempt (1-based).
// The first attempt never waits.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 || p.InitialBackoff <= 0 {
		return 0
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := p.InitialBackoff
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}
