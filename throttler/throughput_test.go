package throttler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
)

func TestThroughputCountersTracksBothOpsIndependently(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	c := NewThroughputCounters(ts, time.Second)

	c.UpdateCost(1000, OpRead)
	c.UpdateCost(50, OpWrite)
	ts.Advance(10 * time.Second)

	assert.InDelta(t, 1000, c.GetCost(OpRead), 1, "read cost should settle near the last observed total after many folding times")
	assert.InDelta(t, 50, c.GetCost(OpWrite), 1, "write cost should settle independently of read cost")
}

func TestUpdateCostReturnsDelta(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	c := NewThroughputCounters(ts, time.Second)

	first := c.UpdateCost(100, OpRead)
	assert.Equal(t, 100.0, first)

	second := c.UpdateCost(130, OpRead)
	assert.Equal(t, 30.0, second)
}
