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

package throttler

import (
	"time"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
)

// PerTagStatistics is the per-tag state: an optional operator Quota, a
// smoothed view of incoming client transaction volume, and a smoothed view
// of the last published per-client rate (used to stabilize successive
// limits rather than react instantly to each tick's target).
type PerTagStatistics struct {
	quota          *Quota
	transactions   *Smoother
	perClientRate  *Smoother
	minRate        float64
}

// NewPerTagStatistics constructs empty (un-quota'd) statistics for a tag.
func NewPerTagStatistics(ts clock.TimeSource, foldingTime time.Duration, minRate float64) *PerTagStatistics {
	return &PerTagStatistics{
		transactions:  NewSmoother(ts, foldingTime),
		perClientRate: NewSmoother(ts, foldingTime),
		minRate:       minRate,
	}
}

// SetQuota replaces the tag's Quota.
func (p *PerTagStatistics) SetQuota(q Quota) {
	p.quota = &q
}

// ClearQuota removes the tag's Quota, marking it un-quota'd.
func (p *PerTagStatistics) ClearQuota() {
	p.quota = nil
}

// GetQuota returns the tag's Quota, and whether one is set.
func (p *PerTagStatistics) GetQuota() (Quota, bool) {
	if p.quota == nil {
		return Quota{}, false
	}
	return *p.quota, true
}

// AddTransactions folds n newly observed transactions into the smoothed
// transaction-rate counter.
func (p *PerTagStatistics) AddTransactions(n float64) {
	p.transactions.AddDelta(n)
}

// TransactionRate returns the cluster-wide smoothed TPS being observed for
// this tag.
func (p *PerTagStatistics) TransactionRate() float64 {
	return p.transactions.SmoothedRate()
}

// UpdateAndGetPerClientLimit implements the per-client-limit update rule
// (spec §4.C): given the target cluster-wide TPS targetCost, derive the new
// per-client rate from the ratio of target to observed demand, scaling the
// last published per-client rate by it, then clamp to [minRate, targetCost].
//
// The returned limit is the just-written value itself, not its smoothed
// form — the per-client-rate smoother exists only to supply P_prev for the
// next call, matching the resolution of Open Question 4.
func (p *PerTagStatistics) UpdateAndGetPerClientLimit(targetCost float64, targetCostPresent bool) (float64, bool) {
	if !targetCostPresent {
		return 0, false
	}
	r := p.TransactionRate()
	if r <= 0 {
		return 0, false
	}
	prev := p.perClientRate.SmoothedTotal()
	newRate := targetCost / r * prev
	if newRate > targetCost {
		newRate = targetCost
	}
	if newRate < p.minRate {
		newRate = p.minRate
	}
	p.perClientRate.SetTotal(newRate)
	return newRate, true
}
