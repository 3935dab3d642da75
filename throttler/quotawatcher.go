// Copyright (c) 2017-2020 Uber Technologies, Inc.
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
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/zxfishhack/globaltagthrottler/common"
	"github.com/zxfishhack/globaltagthrottler/common/backoff"
	"github.com/zxfishhack/globaltagthrottler/common/clock"
	"github.com/zxfishhack/globaltagthrottler/common/dynamicconfig"
	"github.com/zxfishhack/globaltagthrottler/common/log"
	"github.com/zxfishhack/globaltagthrottler/common/log/tag"
	"github.com/zxfishhack/globaltagthrottler/common/metrics"
	"github.com/zxfishhack/globaltagthrottler/throttler/quotasource"
)

var quotaPrefix = []byte("tag_quota/")

// QuotaWatcher is the background task that periodically reloads the
// operator quota table and prunes tags the latest snapshot no longer
// mentions (spec component E).
type QuotaWatcher interface {
	common.Daemon
}

type quotaWatcherImpl struct {
	status       *atomic.Int32
	shutdownChan chan struct{}

	throttler *Throttler
	source    quotasource.Source
	clock     clock.TimeSource
	interval  dynamicconfig.DurationPropertyFn
	rowCap    dynamicconfig.IntPropertyFn
	retry     backoff.RetryPolicy
	logger    log.Logger
	scope     metrics.Scope
}

var _ QuotaWatcher = (*quotaWatcherImpl)(nil)

// NewQuotaWatcher constructs a QuotaWatcher that reloads quotas for
// throttler from source.
func NewQuotaWatcher(
	throttler *Throttler,
	source quotasource.Source,
	ts clock.TimeSource,
	interval dynamicconfig.DurationPropertyFn,
	rowCap dynamicconfig.IntPropertyFn,
	logger log.Logger,
	scope metrics.Scope,
) QuotaWatcher {
	retry := backoff.NewExponentialRetryPolicy(100 * time.Millisecond).
		SetMaximumInterval(10 * time.Second).
		SetExpirationInterval(backoff.NoInterval)

	return &quotaWatcherImpl{
		status:       atomic.NewInt32(common.DaemonStatusInitialized),
		shutdownChan: make(chan struct{}),
		throttler:    throttler,
		source:       source,
		clock:        ts,
		interval:     interval,
		rowCap:       rowCap,
		retry:        retry,
		logger:       logger,
		scope:        scope,
	}
}

func (w *quotaWatcherImpl) Start() {
	if !w.status.CompareAndSwap(common.DaemonStatusInitialized, common.DaemonStatusStarted) {
		return
	}
	go w.loop()
	w.logger.Info("quota watcher started")
}

func (w *quotaWatcherImpl) Stop() {
	if !w.status.CompareAndSwap(common.DaemonStatusStarted, common.DaemonStatusStopped) {
		return
	}
	close(w.shutdownChan)
	w.logger.Info("quota watcher stopped")
}

func (w *quotaWatcherImpl) loop() {
	timer := w.clock.NewTimer(backoff.JitDuration(w.interval(), 0.1))
	defer timer.Stop()

	for {
		select {
		case <-w.shutdownChan:
			return
		case <-timer.Chan():
			w.runPass()
			timer.Reset(backoff.JitDuration(w.interval(), 0.1))
		}
	}
}

// runPass performs one reload: it never exits on failure, retrying
// transient errors via the quota source's retry discipline, and it commits
// the upsert+prune+quota-change-id-bump triple only after a fully
// successful read.
func (w *quotaWatcherImpl) runPass() {
	start := w.clock.Now()

	quotas, err := w.readQuotasWithRetry()
	if err != nil {
		w.logger.Error("quota watcher pass failed, keeping prior state", tag.Error(err))
		w.scope.IncCounter(metrics.QuotaWatcherPassFailure)
		return
	}

	pruned := w.throttler.applyQuotaSnapshot(quotas)

	w.scope.IncCounter(metrics.QuotaWatcherPassSuccess)
	w.scope.AddCounter(metrics.QuotaWatcherTagsPruned, int64(pruned))
	w.scope.RecordTimer(metrics.QuotaWatcherPassLatency, w.clock.Now().Sub(start))
	w.logger.Debug("quota watcher pass complete",
		tag.Count(len(quotas)),
		tag.QuotaChangeID(w.throttler.QuotaChangeID()),
	)
}

func (w *quotaWatcherImpl) readQuotasWithRetry() (map[Tag]Quota, error) {
	var quotas map[Tag]Quota
	op := func() error {
		var err error
		quotas, err = w.readQuotas()
		return err
	}
	err := backoff.RetryWithTimeSource(w.clock, op, w.retry, isTransient)
	return quotas, err
}

func (w *quotaWatcherImpl) readQuotas() (map[Tag]Quota, error) {
	ctx := context.Background()

	tx, err := w.source.OpenReadTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.GetRange(ctx, quotaPrefix, w.rowCap())
	if err != nil {
		return nil, err
	}

	quotas := make(map[Tag]Quota, len(rows))
	for _, row := range rows {
		fields, err := quotasource.DecodeQuota(row.Value)
		if err != nil {
			// Malformed quota value: skip this tag rather than failing
			// the whole pass, per the error handling design's preferred
			// option.
			w.logger.Warn("skipping malformed quota value", tag.TransactionTag(string(row.Key)), tag.Error(err))
			continue
		}
		quotas[Tag(row.Key)] = Quota{
			TotalReadQuota:     fields.TotalReadQuota,
			TotalWriteQuota:    fields.TotalWriteQuota,
			ReservedReadQuota:  fields.ReservedReadQuota,
			ReservedWriteQuota: fields.ReservedWriteQuota,
		}
	}
	return quotas, nil
}

// isTransient treats every error from the quota source as retryable: the
// watcher has no way to distinguish a permanently broken connection from a
// slow one, and the spec requires the loop to never exit on failure.
func isTransient(err error) bool {
	return err != nil
}
