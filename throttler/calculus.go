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

// This file holds the cost/rate calculus: pure reads over the facade's
// throughput and per-tag maps that derive desired/reserved/limiting TPS.
// None of these functions mutate state.
package throttler

import "golang.org/x/exp/constraints"

// costOnServer returns the smoothed cost for (server, tag, op), or None if
// that server has no throughput entry for tag.
func (t *Throttler) costOnServer(server ServerID, tag Tag, op OpType) Optional[float64] {
	byTag, ok := t.serverThroughput[server]
	if !ok {
		return None[float64]()
	}
	counters, ok := byTag[tag]
	if !ok {
		return None[float64]()
	}
	return Some(counters.GetCost(op))
}

// costOfServer sums cost(server, tag, op) over every tag with an entry on
// server, or None if the server has no entries at all.
func (t *Throttler) costOfServer(server ServerID, op OpType) Optional[float64] {
	byTag, ok := t.serverThroughput[server]
	if !ok || len(byTag) == 0 {
		return None[float64]()
	}
	sum := 0.0
	for _, counters := range byTag {
		sum += counters.GetCost(op)
	}
	return Some(sum)
}

// costOfTag sums cost(server, tag, op) over every server, treating absence
// on any given server as zero. Always defined.
func (t *Throttler) costOfTag(tag Tag, op OpType) float64 {
	sum := 0.0
	for server := range t.serverThroughput {
		if c, ok := t.costOnServer(server, tag, op).Get(); ok {
			sum += c
		}
	}
	return sum
}

// averageTransactionCostOnServer is cost(server, tag, op) / transactionRate,
// absent if either input is absent or the rate is zero.
func (t *Throttler) averageTransactionCostOnServer(server ServerID, tag Tag, op OpType) Optional[float64] {
	cost, ok := t.costOnServer(server, tag, op).Get()
	if !ok {
		return None[float64]()
	}
	stats, ok := t.tagStats[tag]
	if !ok {
		return None[float64]()
	}
	rate := stats.TransactionRate()
	if rate == 0 {
		return None[float64]()
	}
	return Some(cost / rate)
}

// averageTransactionCost is cost(tag, op) / transactionRate, cluster-wide.
func (t *Throttler) averageTransactionCost(tag Tag, op OpType) Optional[float64] {
	stats, ok := t.tagStats[tag]
	if !ok {
		return None[float64]()
	}
	rate := stats.TransactionRate()
	if rate == 0 {
		return None[float64]()
	}
	return Some(t.costOfTag(tag, op) / rate)
}

// quotaRatio is the tag's share of total quota among tags currently
// producing work on server: numerator is the tag's own total quota (0 if
// un-quota'd), denominator sums total quota over every tag with a
// throughput entry on that server (absent quota counts as 0).
//
// The source compares each iterated tag against the input tag via
// self-comparison, which always succeeds and corrupts the sum; this
// implements the evidently intended per-tag comparison instead.
func (t *Throttler) quotaRatio(tag Tag, server ServerID, op OpType) float64 {
	numer := 0.0
	if stats, ok := t.tagStats[tag]; ok {
		if q, ok := stats.GetQuota(); ok {
			numer = q.TotalQuota(op)
		}
	}
	if numer == 0 {
		return 0
	}

	denom := 0.0
	for other := range t.serverThroughput[server] {
		if stats, ok := t.tagStats[other]; ok {
			if q, ok := stats.GetQuota(); ok {
				denom += q.TotalQuota(op)
			}
		}
	}
	if denom <= 0 {
		return 0
	}
	return numer / denom
}

// limitingCost is the per-server cost ceiling implied by its throttling
// ratio: ratio * currentCost. Defined only when both the ratio and the
// current cost are present.
//
// Open Question 1: the source's guard reads as "ratio absent OR cost
// present OR ratio.inner absent -> absent," which returns absent whenever a
// valid cost measurement exists. This requires both to be present instead,
// matching the evidently intended behavior.
func (t *Throttler) limitingCost(server ServerID, op OpType) Optional[float64] {
	ratio, ok := t.throttlingRatios[server]
	if !ok {
		return None[float64]()
	}
	cost, ok := t.costOfServer(server, op).Get()
	if !ok {
		return None[float64]()
	}
	return Some(ratio * cost)
}

// limitingTPSOnServer is the TPS ceiling (server, tag, op) implies, or
// absent if any input is absent.
func (t *Throttler) limitingTPSOnServer(server ServerID, tag Tag, op OpType) Optional[float64] {
	lc, ok := t.limitingCost(server, op).Get()
	if !ok {
		return None[float64]()
	}
	qr := t.quotaRatio(tag, server, op)
	limitingCostForTag := lc * qr

	avgCost, ok := t.averageTransactionCostOnServer(server, tag, op).Get()
	if !ok || avgCost == 0 {
		return None[float64]()
	}
	return Some(limitingCostForTag / avgCost)
}

// limitingTPSForOp is the element-wise minimum of limitingTPSOnServer over
// every server that has a throttling ratio, treating per-server absences as
// "no vote." Absent if every vote is absent.
func (t *Throttler) limitingTPSForOp(tag Tag, op OpType) Optional[float64] {
	best := Optional[float64]{}
	for server := range t.throttlingRatios {
		vote, ok := t.limitingTPSOnServer(server, tag, op).Get()
		if !ok {
			continue
		}
		cur, has := best.Get()
		if !has || vote < cur {
			best = Some(vote)
		}
	}
	return best
}

// limitingTPS combines the read and write votes: min of both if both
// present, otherwise whichever is present, otherwise absent.
func (t *Throttler) limitingTPS(tag Tag) Optional[float64] {
	return minFallthrough(t.limitingTPSForOp(tag, OpRead), t.limitingTPSForOp(tag, OpWrite))
}

// desiredTPSForOp is total_quota(op) / averageTransactionCost(tag, op),
// absent if quota is absent, cost is absent, or cost is zero.
func (t *Throttler) desiredTPSForOp(tag Tag, op OpType) Optional[float64] {
	stats, ok := t.tagStats[tag]
	if !ok {
		return None[float64]()
	}
	q, ok := stats.GetQuota()
	if !ok {
		return None[float64]()
	}
	avgCost, ok := t.averageTransactionCost(tag, op).Get()
	if !ok || avgCost == 0 {
		return None[float64]()
	}
	return Some(q.TotalQuota(op) / avgCost)
}

// desiredTPS is min(desired_read, desired_write) with either-present
// fallthrough.
func (t *Throttler) desiredTPS(tag Tag) Optional[float64] {
	return minFallthrough(t.desiredTPSForOp(tag, OpRead), t.desiredTPSForOp(tag, OpWrite))
}

// reservedTPSForOp is reserved_quota(op) / averageTransactionCost(tag, op),
// under the same absence conditions as desiredTPSForOp.
func (t *Throttler) reservedTPSForOp(tag Tag, op OpType) Optional[float64] {
	stats, ok := t.tagStats[tag]
	if !ok {
		return None[float64]()
	}
	q, ok := stats.GetQuota()
	if !ok {
		return None[float64]()
	}
	avgCost, ok := t.averageTransactionCost(tag, op).Get()
	if !ok || avgCost == 0 {
		return None[float64]()
	}
	return Some(q.ReservedQuota(op) / avgCost)
}

// reservedTPS is max(reserved_read, reserved_write) with either-present
// fallthrough: the reservation must be honored for whichever direction the
// tag is actually using.
func (t *Throttler) reservedTPS(tag Tag) Optional[float64] {
	return maxFallthrough(t.reservedTPSForOp(tag, OpRead), t.reservedTPSForOp(tag, OpWrite))
}

// targetCost is T = max(reserved, min(limiting, desired)); absent if any of
// the three inputs is absent.
func (t *Throttler) targetCost(tag Tag) Optional[float64] {
	limiting, ok := t.limitingTPS(tag).Get()
	if !ok {
		return None[float64]()
	}
	desired, ok := t.desiredTPS(tag).Get()
	if !ok {
		return None[float64]()
	}
	reserved, ok := t.reservedTPS(tag).Get()
	if !ok {
		return None[float64]()
	}
	target := reserved
	capped := limiting
	if desired < capped {
		capped = desired
	}
	if capped > target {
		target = capped
	}
	return Some(target)
}

// minFallthrough and maxFallthrough implement the either-present-falls-
// through combination rule used throughout this file: when both inputs are
// present the extremum wins, when only one is present it wins by default,
// and the result is absent only when both inputs are absent. Written
// against constraints.Ordered rather than hardcoded to float64.
func minFallthrough[T constraints.Ordered](a, b Optional[T]) Optional[T] {
	av, aok := a.Get()
	bv, bok := b.Get()
	switch {
	case aok && bok:
		if av < bv {
			return Some(av)
		}
		return Some(bv)
	case aok:
		return Some(av)
	case bok:
		return Some(bv)
	default:
		return None[T]()
	}
}

func maxFallthrough[T constraints.Ordered](a, b Optional[T]) Optional[T] {
	av, aok := a.Get()
	bv, bok := b.Get()
	switch {
	case aok && bok:
		if av > bv {
			return Some(av)
		}
		return Some(bv)
	case aok:
		return Some(av)
	case bok:
		return Some(bv)
	default:
		return None[T]()
	}
}
