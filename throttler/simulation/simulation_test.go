package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
	"github.com/zxfishhack/globaltagthrottler/common/log/loggerimpl"
	"github.com/zxfishhack/globaltagthrottler/common/metrics"
	"github.com/zxfishhack/globaltagthrottler/throttler"
)

func newScenarioThrottler(ts clock.MockedTimeSource) *throttler.Throttler {
	cfg := throttler.Config{
		FoldingTime:      func() float64 { return 5 },
		MinPerClientRate: func() float64 { return 1 },
		QuotaRowCap:      func() int { return 10000 },
		QuotaWatcherRate: func() time.Duration { return 5 * time.Second },
	}
	return throttler.New(ts, cfg, loggerimpl.NewNopLogger(), metrics.NoopScope())
}

func tenServers(targetCost float64) []MockStorageServer {
	servers := make([]MockStorageServer, 10)
	for i := range servers {
		servers[i] = MockStorageServer{ID: throttler.ServerID("s" + string(rune('0'+i))), TargetCost: targetCost}
	}
	return servers
}

// Simple read: quota (100, 0), one client demanding 5 tps at cost 6/txn,
// server target cost 100/s (far above actual demand). Converges to 100/6.
func TestSimpleReadConverges(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newScenarioThrottler(ts)
	th.SetQuota("t", throttler.Quota{TotalReadQuota: 100})

	s := &Scenario{
		Throttler:     th,
		Clock:         ts,
		Servers:       tenServers(100),
		Clients:       []*SimulatedClient{NewSimulatedClient(ts, "t", 5)},
		Tag:           "t",
		Op:            throttler.OpRead,
		AvgCostPerTxn: 6,
	}

	limit, converged := RunToConvergence(s, 300)
	assert.True(t, converged, "expected convergence within 300 simulated seconds")
	assert.InDelta(t, 100.0/6.0, limit, 1.0)
}

// Demand above quota: quota (100, 0), demand (20, 10) -> cost rate 200/s
// exceeds the 100/s quota, so the published limit caps at desired = 100/10 = 10.
func TestDemandAboveQuotaCapsAtDesired(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newScenarioThrottler(ts)
	th.SetQuota("t", throttler.Quota{TotalReadQuota: 100})

	s := &Scenario{
		Throttler:     th,
		Clock:         ts,
		Servers:       tenServers(100),
		Clients:       []*SimulatedClient{NewSimulatedClient(ts, "t", 20)},
		Tag:           "t",
		Op:            throttler.OpRead,
		AvgCostPerTxn: 10,
	}

	limit, converged := RunToConvergence(s, 300)
	assert.True(t, converged)
	assert.InDelta(t, 10.0, limit, 1.0)
}

// Active cluster throttling: quota (100, 0), but each server's target cost
// is only 5/s, well below the 60/s the 10-tps/cost-6 demand would produce
// cluster-wide, so the health signal pulls the published limit down to 50/6.
func TestActiveClusterThrottlingPullsLimitDown(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newScenarioThrottler(ts)
	th.SetQuota("t", throttler.Quota{TotalReadQuota: 100})

	s := &Scenario{
		Throttler:     th,
		Clock:         ts,
		Servers:       tenServers(5),
		Clients:       []*SimulatedClient{NewSimulatedClient(ts, "t", 10)},
		Tag:           "t",
		Op:            throttler.OpRead,
		AvgCostPerTxn: 6,
	}

	limit, converged := RunToConvergence(s, 300)
	assert.True(t, converged)
	assert.InDelta(t, 50.0/6.0, limit, 1.5)
}

// Reserved floor: quota (100 total, 70 reserved), server target 5/s pulls
// limiting well below desired, but the reservation forces the published
// limit back up to 70/6.
func TestReservedFloorForcesLimitUp(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newScenarioThrottler(ts)
	th.SetQuota("t", throttler.Quota{TotalReadQuota: 100, ReservedReadQuota: 70})

	s := &Scenario{
		Throttler:     th,
		Clock:         ts,
		Servers:       tenServers(5),
		Clients:       []*SimulatedClient{NewSimulatedClient(ts, "t", 10)},
		Tag:           "t",
		Op:            throttler.OpRead,
		AvgCostPerTxn: 6,
	}

	limit, converged := RunToConvergence(s, 300)
	assert.True(t, converged)
	assert.InDelta(t, 70.0/6.0, limit, 1.5)
}

// Remove quota after convergence: once a converged tag's quota is cleared,
// the throttler must stop publishing a limit for it at all.
func TestRemoveQuotaAfterConvergenceYieldsNoLimit(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newScenarioThrottler(ts)
	th.SetQuota("t", throttler.Quota{TotalReadQuota: 100})

	s := &Scenario{
		Throttler:     th,
		Clock:         ts,
		Servers:       tenServers(100),
		Clients:       []*SimulatedClient{NewSimulatedClient(ts, "t", 5)},
		Tag:           "t",
		Op:            throttler.OpRead,
		AvgCostPerTxn: 6,
	}
	_, converged := RunToConvergence(s, 300)
	assert.True(t, converged)

	th.RemoveQuota("t")
	rates := th.GetClientRates()
	assert.Empty(t, rates, "a tag with no quota can never have a fully-present target cost")
}
