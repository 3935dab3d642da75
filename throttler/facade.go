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
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
	"github.com/zxfishhack/globaltagthrottler/common/dynamicconfig"
	"github.com/zxfishhack/globaltagthrottler/common/log"
	"github.com/zxfishhack/globaltagthrottler/common/metrics"
)

// Config bundles the throttler's live-updatable knobs. Pass these
// explicitly via construction rather than reading a process-wide global, so
// every Throttler instance (and every test) can run with its own clock and
// folding time.
type Config struct {
	FoldingTime      dynamicconfig.FloatPropertyFn
	MinPerClientRate dynamicconfig.FloatPropertyFn
	QuotaRowCap      dynamicconfig.IntPropertyFn
	QuotaWatcherRate dynamicconfig.DurationPropertyFn
}

// Throttler is the public facade (spec component F): the single point of
// entry for telemetry ingestion, health-ratio updates, quota edits, and
// published client rates. All Facade state is meant to be touched from one
// logical task; the mutex below is this package's idiomatic stand-in for
// that cooperative-scheduling requirement, since Go has no built-in actor
// mailbox.
type Throttler struct {
	mut sync.Mutex

	clock  clock.TimeSource
	cfg    Config
	logger log.Logger
	scope  metrics.Scope

	tagStats         map[Tag]*PerTagStatistics
	serverThroughput map[ServerID]map[Tag]*ThroughputCounters
	throttlingRatios map[ServerID]float64

	quotaChangeID atomic.Int64
}

// New constructs an empty Throttler.
func New(ts clock.TimeSource, cfg Config, logger log.Logger, scope metrics.Scope) *Throttler {
	return &Throttler{
		clock:            ts,
		cfg:              cfg,
		logger:           logger,
		scope:            scope,
		tagStats:         make(map[Tag]*PerTagStatistics),
		serverThroughput: make(map[ServerID]map[Tag]*ThroughputCounters),
		throttlingRatios: make(map[ServerID]float64),
	}
}

func (t *Throttler) foldingTime() time.Duration {
	return time.Duration(t.cfg.FoldingTime() * float64(time.Second))
}

// statsFor returns the tag's PerTagStatistics, creating it lazily (per the
// data model's creation rule: quota assignment, telemetry, or transaction
// ingestion all create statistics on first touch).
func (t *Throttler) statsFor(tag Tag) *PerTagStatistics {
	stats, ok := t.tagStats[tag]
	if !ok {
		stats = NewPerTagStatistics(t.clock, t.foldingTime(), t.cfg.MinPerClientRate())
		t.tagStats[tag] = stats
	}
	return stats
}

func (t *Throttler) throughputFor(server ServerID, tag Tag) *ThroughputCounters {
	byTag, ok := t.serverThroughput[server]
	if !ok {
		byTag = make(map[Tag]*ThroughputCounters)
		t.serverThroughput[server] = byTag
	}
	counters, ok := byTag[tag]
	if !ok {
		counters = NewThroughputCounters(t.clock, t.foldingTime())
		byTag[tag] = counters
	}
	return counters
}

// IngestTelemetry folds one storage server's busiest-tag report into the
// throughput counters. It returns nothing and completes synchronously: it
// is listed as non-suspending in the concurrency model.
func (t *Throttler) IngestTelemetry(info StorageQueueInfo) {
	t.mut.Lock()
	defer t.mut.Unlock()

	for _, sample := range info.BusiestReadTags {
		t.statsFor(sample.Tag)
		t.throughputFor(info.ServerID, sample.Tag).UpdateCost(sample.RateBytesPerSecond, OpRead)
	}
	for _, sample := range info.BusiestWriteTags {
		t.statsFor(sample.Tag)
		t.throughputFor(info.ServerID, sample.Tag).UpdateCost(sample.RateBytesPerSecond, OpWrite)
	}
	t.scope.IncCounter(metrics.TelemetryIngested)
}

// SetThrottlingRatio replaces the per-server health signal. present=false
// clears it, withholding that server's limiting-TPS vote.
func (t *Throttler) SetThrottlingRatio(server ServerID, ratio float64, present bool) {
	t.mut.Lock()
	defer t.mut.Unlock()

	if !present {
		delete(t.throttlingRatios, server)
		return
	}
	t.throttlingRatios[server] = ratio
}

// SetQuota is an in-memory edit; it does not reach the external quota
// source (only the watcher does that, and only in the read direction).
func (t *Throttler) SetQuota(tag Tag, q Quota) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.statsFor(tag).SetQuota(q)
}

// RemoveQuota is an in-memory edit clearing a tag's quota.
func (t *Throttler) RemoveQuota(tag Tag) {
	t.mut.Lock()
	defer t.mut.Unlock()
	if stats, ok := t.tagStats[tag]; ok {
		stats.ClearQuota()
	}
}

// AddRequests folds a frontend-reported transaction count into the tag's
// transaction-rate smoother.
func (t *Throttler) AddRequests(tag Tag, n float64) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.statsFor(tag).AddTransactions(n)
}

// GetClientRates computes the current per-priority client rate map.
//
// Contract: for every tag currently tracked, limiting/desired/reserved TPS
// must all be present or the entire result is the empty map — the
// throttler never publishes a partial snapshot. Priority is not
// distinguished in this version; batch and default receive the same limit.
func (t *Throttler) GetClientRates() ClientRateMap {
	t.mut.Lock()
	defer t.mut.Unlock()

	batch := make(map[Tag]ClientTagThrottleLimits, len(t.tagStats))
	def := make(map[Tag]ClientTagThrottleLimits, len(t.tagStats))

	for tag, stats := range t.tagStats {
		target, ok := t.targetCost(tag).Get()
		if !ok {
			t.scope.IncCounter(metrics.ClientRatesEmpty)
			return ClientRateMap{}
		}
		pc, ok := stats.UpdateAndGetPerClientLimit(target, true)
		if !ok {
			t.scope.IncCounter(metrics.ClientRatesEmpty)
			return ClientRateMap{}
		}
		limit := ClientTagThrottleLimits{TpsRate: pc}
		batch[tag] = limit
		def[tag] = limit
	}
	if len(batch) == 0 {
		return ClientRateMap{}
	}

	t.scope.AddCounter(metrics.ClientRatesPublished, int64(len(batch)))
	return ClientRateMap{
		PriorityBatch:   batch,
		PriorityDefault: def,
	}
}

// QuotaChangeID returns the watcher's monotonic quota generation counter.
func (t *Throttler) QuotaChangeID() int64 {
	return t.quotaChangeID.Load()
}

func (t *Throttler) bumpQuotaChangeID() {
	t.quotaChangeID.Inc()
}

// AutoThrottleCount approximates the number of tags under management.
func (t *Throttler) AutoThrottleCount() int {
	t.mut.Lock()
	defer t.mut.Unlock()
	return len(t.tagStats)
}

// BusyReadTagCount is a placeholder: this throttler does not distinguish
// busy tags from quota-bearing tags.
func (t *Throttler) BusyReadTagCount() int { return 0 }

// BusyWriteTagCount is a placeholder, see BusyReadTagCount.
func (t *Throttler) BusyWriteTagCount() int { return 0 }

// ManualThrottleCount is always zero: only automatic quota-driven
// throttling is computed in this version.
func (t *Throttler) ManualThrottleCount() int { return 0 }

// IsAutoThrottlingEnabled is always true in this version.
func (t *Throttler) IsAutoThrottlingEnabled() bool { return true }

// applyQuotaSnapshot is invoked by the quota watcher after a fully
// successful pass: it upserts every seen tag's quota, prunes any tag whose
// statistics exist but was absent from the snapshot, and bumps the change
// id. All three happen atomically under the facade's lock, and only after
// a full successful read (never on partial progress).
func (t *Throttler) applyQuotaSnapshot(quotas map[Tag]Quota) (pruned int) {
	t.mut.Lock()
	defer t.mut.Unlock()

	for tag, q := range quotas {
		t.statsFor(tag).SetQuota(q)
	}

	for tag := range t.tagStats {
		if _, seen := quotas[tag]; !seen {
			delete(t.tagStats, tag)
			pruned++
		}
	}

	t.bumpQuotaChangeID()
	return pruned
}
