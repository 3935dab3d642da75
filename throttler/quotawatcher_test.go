package throttler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
	"github.com/zxfishhack/globaltagthrottler/common/log/loggerimpl"
	"github.com/zxfishhack/globaltagthrottler/common/metrics"
	"github.com/zxfishhack/globaltagthrottler/throttler/quotasource"
)

// fakeSource is an in-memory quotasource.Source for tests. Rows are encoded
// with the same bson field names quotasource.DecodeQuota expects, so the
// watcher is exercised end to end without a live database.
type fakeSource struct {
	rows      []quotasource.KeyValue
	failCount int
}

func (s *fakeSource) OpenReadTx(ctx context.Context) (quotasource.Transaction, error) {
	if s.failCount > 0 {
		s.failCount--
		return nil, errors.New("fake transient failure")
	}
	return &fakeTx{rows: s.rows}, nil
}

type fakeTx struct {
	rows []quotasource.KeyValue
}

func (tx *fakeTx) GetRange(ctx context.Context, prefix []byte, limit int) ([]quotasource.KeyValue, error) {
	out := make([]quotasource.KeyValue, 0, len(tx.rows))
	for _, r := range tx.rows {
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func encodeQuotaRow(t *testing.T, tagName Tag, q Quota) quotasource.KeyValue {
	value, err := bson.Marshal(bson.M{
		"_id":                  string(tagName),
		"total_read_quota":     q.TotalReadQuota,
		"total_write_quota":    q.TotalWriteQuota,
		"reserved_read_quota":  q.ReservedReadQuota,
		"reserved_write_quota": q.ReservedWriteQuota,
	})
	assert.NoError(t, err)
	return quotasource.KeyValue{Key: []byte(tagName), Value: value}
}

func TestQuotaWatcherAppliesSnapshotOnSuccess(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newTestThrottler(ts)
	th.SetQuota("stale", Quota{TotalReadQuota: 1})

	source := &fakeSource{rows: []quotasource.KeyValue{
		encodeQuotaRow(t, "fresh", Quota{TotalReadQuota: 9}),
	}}

	w := NewQuotaWatcher(th, source, ts,
		func() time.Duration { return time.Second },
		func() int { return 100 },
		loggerimpl.NewNopLogger(),
		metrics.NoopScope(),
	)

	impl := w.(*quotaWatcherImpl)
	impl.runPass()

	assert.Equal(t, 1, len(th.tagStats), "the stale tag is pruned and the fresh tag is the only survivor")
	_, ok := th.tagStats["stale"]
	assert.False(t, ok)
	q, ok := th.tagStats["fresh"].GetQuota()
	assert.True(t, ok)
	assert.Equal(t, 9.0, q.TotalReadQuota)
}

func TestQuotaWatcherRetriesTransientFailures(t *testing.T) {
	// The retry policy sleeps real wall-clock intervals between attempts
	// (100ms, 200ms), so this uses a real time source rather than a mocked
	// one that would never advance on its own; th's own clock stays mocked
	// since nothing here depends on its smoothers advancing.
	realTS := clock.NewRealTimeSource()
	th := newTestThrottler(clock.NewMockedTimeSource())

	source := &fakeSource{
		rows:      []quotasource.KeyValue{encodeQuotaRow(t, "t", Quota{TotalReadQuota: 5})},
		failCount: 2,
	}

	w := NewQuotaWatcher(th, source, realTS,
		func() time.Duration { return time.Second },
		func() int { return 100 },
		loggerimpl.NewNopLogger(),
		metrics.NoopScope(),
	)

	impl := w.(*quotaWatcherImpl)
	impl.runPass()

	q, ok := th.tagStats["t"].GetQuota()
	assert.True(t, ok, "the pass should eventually succeed after retrying transient failures")
	assert.Equal(t, 5.0, q.TotalReadQuota)
}

func TestQuotaWatcherSkipsMalformedRowsWithoutFailingThePass(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newTestThrottler(ts)

	source := &fakeSource{rows: []quotasource.KeyValue{
		{Key: []byte("broken"), Value: []byte("not bson")},
		encodeQuotaRow(t, "good", Quota{TotalReadQuota: 3}),
	}}

	w := NewQuotaWatcher(th, source, ts,
		func() time.Duration { return time.Second },
		func() int { return 100 },
		loggerimpl.NewNopLogger(),
		metrics.NoopScope(),
	)

	impl := w.(*quotaWatcherImpl)
	impl.runPass()

	assert.Len(t, th.tagStats, 1)
	_, ok := th.tagStats["good"]
	assert.True(t, ok)
}

func TestQuotaWatcherStartStopIdempotent(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	th := newTestThrottler(ts)
	source := &fakeSource{}

	w := NewQuotaWatcher(th, source, ts,
		func() time.Duration { return time.Hour },
		func() int { return 100 },
		loggerimpl.NewNopLogger(),
		metrics.NoopScope(),
	)

	w.Start()
	w.Start() // second Start is a no-op, not a panic
	w.Stop()
	w.Stop() // second Stop is a no-op, not a panic or double-close
}
