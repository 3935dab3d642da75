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

// Package metrics wraps go-uber-org/tally with the small, string-keyed
// surface the throttler needs. Unlike the larger int-ID metric registries
// this codebase uses elsewhere, the throttler's metric set is small and
// stable enough that a direct name is clearer than an indirection table.
package metrics

import (
	"time"

	"github.com/uber-go/tally"
)

// Names of the counters, gauges, and timers this package emits.
const (
	QuotaWatcherPassSuccess = "throttler.quota_watcher.pass_success"
	QuotaWatcherPassFailure = "throttler.quota_watcher.pass_failure"
	QuotaWatcherTagsPruned  = "throttler.quota_watcher.tags_pruned"
	QuotaWatcherPassLatency = "throttler.quota_watcher.pass_latency"
	ClientRatesPublished    = "throttler.client_rates.published"
	ClientRatesEmpty        = "throttler.client_rates.empty"
	TelemetryIngested       = "throttler.telemetry.ingested"
	TrackedTagCount         = "throttler.tags.tracked"
)

// Scope is a tagged metrics emitter. It is intentionally a thin wrapper
// over tally.Scope: the throttler has no per-service int-ID registry to
// maintain, so the metric name doubles as its own documentation.
type Scope interface {
	IncCounter(name string)
	AddCounter(name string, delta int64)
	UpdateGauge(name string, value float64)
	RecordTimer(name string, d time.Duration)
	Tagged(tags map[string]string) Scope
}

type tallyScope struct {
	scope tally.Scope
}

// NewScope wraps a tally.Scope.
func NewScope(scope tally.Scope) Scope {
	return &tallyScope{scope: scope}
}

// NoopScope returns a Scope that discards everything, for tests that don't
// assert on metrics.
func NoopScope() Scope {
	return &tallyScope{scope: tally.NoopScope}
}

func (s *tallyScope) IncCounter(name string) {
	s.scope.Counter(name).Inc(1)
}

func (s *tallyScope) AddCounter(name string, delta int64) {
	s.scope.Counter(name).Inc(delta)
}

func (s *tallyScope) UpdateGauge(name string, value float64) {
	s.scope.Gauge(name).Update(value)
}

func (s *tallyScope) RecordTimer(name string, d time.Duration) {
	s.scope.Timer(name).Record(d)
}

func (s *tallyScope) Tagged(tags map[string]string) Scope {
	return &tallyScope{scope: s.scope.Tagged(tags)}
}
