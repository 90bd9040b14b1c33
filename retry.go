package pathways

import "time"

// RetryBuilder assembles the RetryPolicy a NotifyingBundle applies when a
// change notification cannot be delivered to its sink. The zero value is not
// useful; start from Retry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry starts a delivery policy allowing up to attempts deliveries of each
// notification, the first one included. A webhook that is down is tried
// again after the configured backoff until attempts run out, after which
// the notification is dropped and logged.
//
// attempts <= 0 means a single delivery with no retry.
func Retry(attempts int) RetryBuilder {
	return RetryBuilder{policy: RetryPolicy{MaxAttempts: max(attempts, 1)}}
}

// WithExponentialBackoff waits first before the second delivery and
// multiplies the wait by factor for each later one, never waiting longer
// than ceiling. A factor <= 0 doubles the wait. A ceiling <= 0 leaves the
// wait unbounded.
//
//	// 200ms, 400ms, 800ms, ... at most 5s between webhook calls
//	Retry(6).WithExponentialBackoff(200*time.Millisecond, 2, 5*time.Second)
func (r RetryBuilder) WithExponentialBackoff(first time.Duration, factor float64, ceiling time.Duration) RetryBuilder {
	if factor <= 0 {
		factor = 2
	}
	return r.with(first, factor, ceiling)
}

// WithConstantBackoff waits the same interval before every redelivery.
func (r RetryBuilder) WithConstantBackoff(interval time.Duration) RetryBuilder {
	return r.with(interval, 1, 0)
}

// Immediate redelivers as soon as the worker picks the notification up again.
func (r RetryBuilder) Immediate() RetryBuilder {
	return r.with(0, 0, 0)
}

// Policy returns the assembled policy, ready for NewSQLiteBundle or the
// Retry field of notify.Config.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}

func (r RetryBuilder) with(first time.Duration, factor float64, ceiling time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = first
	p.BackoffMultiplier = factor
	p.MaxBackoff = ceiling
	return RetryBuilder{policy: p}
}
