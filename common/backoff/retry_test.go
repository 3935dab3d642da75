package backoff

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
)

func TestRetryWithTimeSourceSucceedsAfterTransientFailures(t *testing.T) {
	ts := clock.NewRealTimeSource()
	policy := NewExponentialRetryPolicy(time.Millisecond).SetMaximumInterval(10 * time.Millisecond)

	attempts := 0
	err := RetryWithTimeSource(ts, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, policy, func(error) bool { return true })

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsWhenErrorIsNotRetryable(t *testing.T) {
	ts := clock.NewRealTimeSource()
	policy := NewExponentialRetryPolicy(time.Millisecond)

	attempts := 0
	permanent := errors.New("permanent")
	err := RetryWithTimeSource(ts, func() error {
		attempts++
		return permanent
	}, policy, func(error) bool { return false })

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsAtMaximumAttempts(t *testing.T) {
	ts := clock.NewRealTimeSource()
	policy := NewExponentialRetryPolicy(time.Millisecond).SetMaximumAttempts(2)

	attempts := 0
	err := RetryWithTimeSource(ts, func() error {
		attempts++
		return errors.New("always fails")
	}, policy, func(error) bool { return true })

	assert.Error(t, err)
	// ComputeNextDelay(attempt=2) is the call that first sees
	// numAttempts>=maximumAttempts, so the operation still runs once for
	// attempt 0, 1, and 2 before retrying is refused.
	assert.Equal(t, 3, attempts)
}

func TestComputeNextDelayRespectsMaximumInterval(t *testing.T) {
	policy := NewExponentialRetryPolicy(time.Second).SetMaximumInterval(2 * time.Second)

	assert.Equal(t, time.Second, policy.ComputeNextDelay(0, 0))
	assert.Equal(t, 2*time.Second, policy.ComputeNextDelay(0, 1))
	assert.Equal(t, 2*time.Second, policy.ComputeNextDelay(0, 5), "delay must clamp at the configured maximum")
}

func TestJitDurationStaysWithinFraction(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 20; i++ {
		got := JitDuration(d, 0.1)
		assert.InDelta(t, float64(d), float64(got), float64(10*time.Millisecond))
	}
}
