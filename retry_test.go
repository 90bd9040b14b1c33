package pathways

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// schedule lists the waits before deliveries 2..Attempts().
func schedule(p RetryPolicy) []time.Duration {
	var waits []time.Duration
	for attempt := 2; attempt <= p.Attempts(); attempt++ {
		waits = append(waits, p.Delay(attempt))
	}
	return waits
}

func TestRetry_DeliverySchedules(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		name   string
		policy RetryPolicy
		waits  []time.Duration
	}{
		{
			name:   "single delivery",
			policy: Retry(1).WithConstantBackoff(time.Second).Policy(),
			waits:  nil,
		},
		{
			name:   "non-positive attempts deliver once",
			policy: Retry(-3).Policy(),
			waits:  nil,
		},
		{
			name:   "webhook backoff doubles up to the ceiling",
			policy: Retry(6).WithExponentialBackoff(100*ms, 2, 500*ms).Policy(),
			waits:  []time.Duration{100 * ms, 200 * ms, 400 * ms, 500 * ms, 500 * ms},
		},
		{
			name:   "missing factor doubles",
			policy: Retry(4).WithExponentialBackoff(10*ms, 0, 0).Policy(),
			waits:  []time.Duration{10 * ms, 20 * ms, 40 * ms},
		},
		{
			name:   "constant interval",
			policy: Retry(4).WithConstantBackoff(250 * ms).Policy(),
			waits:  []time.Duration{250 * ms, 250 * ms, 250 * ms},
		},
		{
			name:   "immediate after backoff",
			policy: Retry(3).WithExponentialBackoff(time.Second, 3, time.Minute).Immediate().Policy(),
			waits:  []time.Duration{0, 0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.waits, schedule(tc.policy))
		})
	}
}

func TestRetry_FirstDeliveryNeverWaits(t *testing.T) {
	p := Retry(5).WithConstantBackoff(time.Hour).Policy()
	require.Zero(t, p.Delay(1))
	require.Equal(t, 5, p.Attempts())
}

func TestRetry_ChangingBackoffKeepsAttempts(t *testing.T) {
	p := Retry(7).WithConstantBackoff(time.Second).WithExponentialBackoff(time.Millisecond, 4, 0).Policy()
	require.Equal(t, 7, p.MaxAttempts)
	require.Equal(t, time.Millisecond, p.InitialBackoff)
	require.Equal(t, 4.0, p.BackoffMultiplier)
	require.Zero(t, p.MaxBackoff)
}
