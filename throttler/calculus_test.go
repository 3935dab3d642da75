package throttler

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
	"github.com/zxfishhack/globaltagthrottler/common/log/loggerimpl"
	"github.com/zxfishhack/globaltagthrottler/common/metrics"
)

func newTestThrottler(ts clock.TimeSource) *Throttler {
	cfg := Config{
		FoldingTime:      func() float64 { return 5 },
		MinPerClientRate: func() float64 { return 1 },
		QuotaRowCap:      func() int { return 10000 },
		QuotaWatcherRate: func() time.Duration { return 5 * time.Second },
	}
	return New(ts, cfg, loggerimpl.NewNopLogger(), metrics.NoopScope())
}

func TestLimitingCostRequiresBothRatioAndCost(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newTestThrottler(ts)

	// Cost present, ratio absent: limitingCost must stay absent.
	th.throughputFor("s1", "t1").UpdateCost(1000, OpRead)
	_, ok := th.limitingCost("s1", OpRead).Get()
	assert.False(t, ok, "open question 1: a cost sample with no throttling ratio must not produce a limiting cost")

	// Ratio present, cost absent (different server): still absent.
	th.throttlingRatios["s2"] = 0.5
	_, ok = th.limitingCost("s2", OpRead).Get()
	assert.False(t, ok, "open question 1: a throttling ratio with no cost sample must not produce a limiting cost")

	// Both present: limitingCost is ratio * smoothed cost. After 10s with a
	// 5s folding time the cost smoother holds 1000*(1-e^-2).
	th.throttlingRatios["s1"] = 0.5
	ts.Advance(10 * time.Second)
	got, ok := th.limitingCost("s1", OpRead).Get()
	assert.True(t, ok)
	assert.InDelta(t, 0.5*1000*(1-math.Exp(-10.0/5.0)), got, 1)
}

func TestQuotaRatioComparesAgainstTheRequestedTag(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newTestThrottler(ts)

	th.statsFor("a").SetQuota(Quota{TotalReadQuota: 30})
	th.statsFor("b").SetQuota(Quota{TotalReadQuota: 70})
	th.throughputFor("s1", "a").UpdateCost(1, OpRead)
	th.throughputFor("s1", "b").UpdateCost(1, OpRead)

	// Open question 2: tag "a" should get its own 30/(30+70) share, not a
	// self-comparison artifact that would give every tag a share of 1.
	assert.InDelta(t, 0.3, th.quotaRatio("a", "s1", OpRead), 1e-9)
	assert.InDelta(t, 0.7, th.quotaRatio("b", "s1", OpRead), 1e-9)
}

func TestQuotaRatioZeroWhenTagHasNoQuota(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newTestThrottler(ts)
	th.statsFor("a")
	th.throughputFor("s1", "a").UpdateCost(1, OpRead)

	assert.Equal(t, 0.0, th.quotaRatio("a", "s1", OpRead))
}

func TestTargetCostIsMaxReservedMinLimitingDesired(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newTestThrottler(ts)

	th.statsFor("t").SetQuota(Quota{TotalReadQuota: 100, ReservedReadQuota: 5})
	th.throttlingRatios["s1"] = 1.0
	th.throughputFor("s1", "t").UpdateCost(200, OpRead)
	th.AddRequests("t", 20)
	ts.Advance(10 * time.Second)

	target, ok := th.targetCost("t").Get()
	assert.True(t, ok)

	limiting, _ := th.limitingTPS("t").Get()
	desired, _ := th.desiredTPS("t").Get()
	reserved, _ := th.reservedTPS("t").Get()

	capped := limiting
	if desired < capped {
		capped = desired
	}
	want := reserved
	if capped > want {
		want = capped
	}
	assert.InDelta(t, want, target, 1e-9)
}

func TestMinMaxFallthroughPreferWhicheverIsPresent(t *testing.T) {
	assert.Equal(t, 5.0, minFallthrough(Some(5.0), None[float64]()).OrZero())
	assert.Equal(t, 5.0, minFallthrough(None[float64](), Some(5.0)).OrZero())
	assert.Equal(t, 3.0, minFallthrough(Some(5.0), Some(3.0)).OrZero())
	_, ok := minFallthrough(None[float64](), None[float64]()).Get()
	assert.False(t, ok)

	assert.Equal(t, 5.0, maxFallthrough(Some(5.0), None[float64]()).OrZero())
	assert.Equal(t, 5.0, maxFallthrough(Some(5.0), Some(3.0)).OrZero())
}
