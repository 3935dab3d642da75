package throttler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
)

func TestUpdateAndGetPerClientLimitAbsentWhenTargetAbsent(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	p := NewPerTagStatistics(ts, time.Second, 1)

	_, ok := p.UpdateAndGetPerClientLimit(100, false)
	assert.False(t, ok)
}

func TestUpdateAndGetPerClientLimitAbsentWhenNoDemand(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	p := NewPerTagStatistics(ts, time.Second, 1)

	_, ok := p.UpdateAndGetPerClientLimit(100, true)
	assert.False(t, ok, "zero observed transaction rate means no client to scale a limit for")
}

func TestUpdateAndGetPerClientLimitClampsToMinAndTarget(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	p := NewPerTagStatistics(ts, time.Second, 2)

	p.AddTransactions(10)
	ts.Advance(10 * time.Second)

	limit, ok := p.UpdateAndGetPerClientLimit(5, true)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, limit, 2.0)
	assert.LessOrEqual(t, limit, 5.0)
}

func TestUpdateAndGetPerClientLimitReturnsUnsmoothedValue(t *testing.T) {
	// Open Question 4: the returned value must be exactly what was just
	// written to the smoother, not a smoothed read of it.
	ts := clock.NewMockedTimeSource()
	p := NewPerTagStatistics(ts, time.Second, 1)

	p.AddTransactions(10)
	ts.Advance(10 * time.Second)

	first, ok := p.UpdateAndGetPerClientLimit(5, true)
	assert.True(t, ok)

	// Immediately afterward, with no further time passing, the smoother's
	// own SmoothedTotal would still read the prior value if UpdateAndGetPerClientLimit
	// returned a smoothed read instead of the raw write.
	assert.Equal(t, first, p.perClientRate.Total())
}

func TestQuotaLifecycle(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	p := NewPerTagStatistics(ts, time.Second, 1)

	_, ok := p.GetQuota()
	assert.False(t, ok)

	p.SetQuota(Quota{TotalReadQuota: 10})
	q, ok := p.GetQuota()
	assert.True(t, ok)
	assert.Equal(t, 10.0, q.TotalReadQuota)

	p.ClearQuota()
	_, ok = p.GetQuota()
	assert.False(t, ok)
}
