// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package simulation provides a deterministic, in-process convergence
// harness for exercising the throttler end to end, supplementing the
// equilibrium scenarios with a reusable engine instead of ad hoc per-test
// plumbing.
package simulation

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
	"github.com/zxfishhack/globaltagthrottler/throttler"
)

// MockStorageServer tracks one storage server's target and observed cost
// rate for a single operation kind, deriving a throttling ratio via the
// spring-cost-rate formula: a server at or below target reports ratio 1; a
// saturated server's ratio shrinks as the overshoot grows,
// reaching zero once the overshoot equals one spring width.
type MockStorageServer struct {
	ID         throttler.ServerID
	TargetCost float64
}

// ThrottlingRatio reports the health ratio this server would publish for the
// given observed cost rate. A server running under its target reports full
// speed (ratio 1); a saturated server's ratio shrinks toward zero as the
// overshoot approaches one spring width, per the spring-cost-rate formula. A
// healthy server always reports a ratio — absence models a server that has
// not reported at all, not one running comfortably under target.
//
// This intentionally relaxes the original formula, which reports absent
// (rather than 1) below the spring's lower edge: targetCost requires
// limitingTPS present, and limitingTPS requires at least one server's
// ratio present, so a literal "absent below target" mock would leave every
// under-saturated scenario (e.g. the simple-read scenario below) with a
// permanently empty published rate map. Always voting, at 1.0 when
// comfortable, keeps that gate satisfiable without changing what a
// saturated server reports.
func (s MockStorageServer) ThrottlingRatio(currentCost float64) float64 {
	if currentCost <= s.TargetCost {
		return 1.0
	}
	springCostRate := 0.2 * s.TargetCost
	if springCostRate <= 0 {
		return 0
	}
	ratio := ((s.TargetCost + springCostRate) - currentCost) / springCostRate
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// SimulatedClient issues requests for one tag at a configured demand TPS,
// paced by a token-bucket limiter so bursts don't exceed the per-tick
// allowance, and tracks how many requests actually went through. The
// limiter is driven against the scenario's own clock via AllowN rather than
// through a TimeSource-wrapping Ratelimiter: this client only ever needs a
// plain Allow check against one consistently-supplied clock, so the
// production-grade wrapper's cancelable-reservation machinery has no role
// to play here.
type SimulatedClient struct {
	Tag       throttler.Tag
	DemandTPS float64

	clock     clock.TimeSource
	limiter   *rate.Limiter
	fulfilled float64
}

// NewSimulatedClient constructs a client demanding demandTPS of tag,
// paced against ts.
func NewSimulatedClient(ts clock.TimeSource, tagName throttler.Tag, demandTPS float64) *SimulatedClient {
	return &SimulatedClient{
		Tag:       tagName,
		DemandTPS: demandTPS,
		clock:     ts,
		limiter:   rate.NewLimiter(rate.Limit(demandTPS), int(math.Max(1, demandTPS))),
	}
}

// Tick runs up to wantTPS requests for this tick (the smaller of demand and
// the current published limit), admitting each through the limiter, and
// returns how many were actually admitted.
func (c *SimulatedClient) Tick(limitTPS float64) float64 {
	want := c.DemandTPS
	if limitTPS < want {
		want = limitTPS
	}
	now := c.clock.Now()
	admitted := 0.0
	for i := 0; i < int(math.Ceil(want)); i++ {
		if c.limiter.AllowN(now, 1) {
			admitted++
		}
	}
	if admitted > want {
		admitted = want
	}
	c.fulfilled = admitted
	return admitted
}

// Fulfilled returns the last tick's admitted request count.
func (c *SimulatedClient) Fulfilled() float64 {
	return c.fulfilled
}

// Scenario bundles the fixed inputs one convergence run needs: servers
// reporting telemetry for a tag, and clients generating demand for it.
type Scenario struct {
	Throttler *throttler.Throttler
	Clock     clock.MockedTimeSource
	Servers   []MockStorageServer
	Clients   []*SimulatedClient
	Tag       throttler.Tag
	Op        throttler.OpType
	// AvgCostPerTxn converts each tick's admitted transaction count into a
	// cost-rate sample reported to the servers, mimicking real storage-server
	// telemetry derived from actual bytes moved.
	AvgCostPerTxn float64
}

// Step advances the scenario by one simulated second: clients issue their
// ticks against the last published limit, the resulting demand is turned
// into per-server cost telemetry, and the throttler ingests both the
// telemetry and the transaction counts.
func (s *Scenario) Step(limitTPS float64) {
	s.Clock.Advance(time.Second)

	total := 0.0
	for _, c := range s.Clients {
		total += c.Tick(limitTPS)
	}
	s.Throttler.AddRequests(s.Tag, total)

	costRate := total * s.AvgCostPerTxn
	perServer := costRate / float64(len(s.Servers))
	for _, server := range s.Servers {
		ratio := server.ThrottlingRatio(perServer)
		s.Throttler.SetThrottlingRatio(server.ID, ratio, true)

		samples := []throttler.TagSample{{Tag: s.Tag, RateBytesPerSecond: perServer}}
		info := throttler.StorageQueueInfo{ServerID: server.ID}
		if s.Op == throttler.OpRead {
			info.BusiestReadTags = samples
		} else {
			info.BusiestWriteTags = samples
		}
		s.Throttler.IngestTelemetry(info)
	}
}

// RunToConvergence steps the scenario for up to maxSeconds simulated
// seconds, returning the tag's published TPS limit and true once three
// consecutive samples land within 1 TPS of each other. If convergence is
// never reached it returns the final sample and false.
func RunToConvergence(s *Scenario, maxSeconds int) (float64, bool) {
	var prev [3]float64
	// Until the throttler has published a limit, clients run at their full
	// desired demand, matching how a real frontend behaves before it has
	// ever received a throttle signal.
	limit := math.Inf(1)
	havePublished := false
	samples := 0
	for i := 0; i < maxSeconds; i++ {
		s.Step(limit)

		rates := s.Throttler.GetClientRates()
		if byTag, ok := rates[throttler.PriorityDefault]; ok {
			if l, ok := byTag[s.Tag]; ok {
				limit = l.TpsRate
				havePublished = true
			}
		}

		if !havePublished {
			continue
		}
		samples++
		prev[0], prev[1], prev[2] = prev[1], prev[2], limit
		if samples >= 3 && withinOne(prev[0], prev[1]) && withinOne(prev[1], prev[2]) {
			return limit, true
		}
	}
	return limit, false
}

func withinOne(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= 1.0
}
