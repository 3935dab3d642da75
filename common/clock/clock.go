// The MIT License (MIT)

// Copyright (c) 2017-2020 Uber Technologies Inc.

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package clock

import (
	"sync"
	"time"
)

type (
	// TimeSource is a test-friendly abstraction over wall-clock time.
	// Production code uses the real time.Now/time.NewTimer/time.AfterFunc,
	// while tests substitute a MockedTimeSource that only moves when told to.
	TimeSource interface {
		// Now returns the current time according to this source.
		Now() time.Time
		// NewTimer behaves like time.NewTimer, backed by this source.
		NewTimer(d time.Duration) Timer
		// NewTicker behaves like time.NewTicker, backed by this source.
		NewTicker(d time.Duration) Ticker
		// AfterFunc behaves like time.AfterFunc, backed by this source.
		AfterFunc(d time.Duration, f func()) Timer
		// Sleep blocks the calling goroutine until the duration elapses on this source.
		Sleep(d time.Duration)
	}

	// Timer mimics the subset of *time.Timer that callers need, so tests can
	// substitute a mocked implementation.
	Timer interface {
		Chan() <-chan time.Time
		Stop() bool
		Reset(d time.Duration) bool
	}

	// Ticker mimics the subset of *time.Ticker that callers need.
	Ticker interface {
		Chan() <-chan time.Time
		Stop()
		Reset(d time.Duration)
	}

	realTimeSource struct{}

	realTimer struct {
		t *time.Timer
	}

	realTicker struct {
		t *time.Ticker
	}
)

var _ TimeSource = realTimeSource{}

// NewRealTimeSource returns a TimeSource backed by the standard library's
// wall clock.
func NewRealTimeSource() TimeSource {
	return realTimeSource{}
}

func (realTimeSource) Now() time.Time {
	return time.Now()
}

func (realTimeSource) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (realTimeSource) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (realTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

func (realTimeSource) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (r *realTimer) Chan() <-chan time.Time    { return r.t.C }
func (r *realTimer) Stop() bool                { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

func (r *realTicker) Chan() <-chan time.Time   { return r.t.C }
func (r *realTicker) Stop()                    { r.t.Stop() }
func (r *realTicker) Reset(d time.Duration)    { r.t.Reset(d) }

// MockedTimeSource is a TimeSource that only advances when Advance is called,
// used by tests that need deterministic control over smoothers, tickers, and
// watcher sleeps without real wall-clock delays.
type MockedTimeSource interface {
	TimeSource
	// Advance moves the mocked clock forward by d, firing any timers,
	// tickers, or AfterFunc callbacks whose deadline has passed.
	Advance(d time.Duration)
}

type mockedTimer struct {
	deadline time.Time
	period   time.Duration // zero for one-shot timers
	c        chan time.Time
	fn       func()
	stopped  bool
	src      *mockedTimeSource
}

type mockedTimeSource struct {
	mut    sync.Mutex
	now    time.Time
	timers []*mockedTimer
}

var _ MockedTimeSource = (*mockedTimeSource)(nil)

// NewMockedTimeSource returns a MockedTimeSource with an arbitrary origin.
func NewMockedTimeSource() MockedTimeSource {
	return NewMockedTimeSourceAt(time.Unix(0, 0))
}

// NewMockedTimeSourceAt returns a MockedTimeSource whose clock starts at now.
func NewMockedTimeSourceAt(now time.Time) MockedTimeSource {
	return &mockedTimeSource{now: now}
}

func (m *mockedTimeSource) Now() time.Time {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.now
}

func (m *mockedTimeSource) NewTimer(d time.Duration) Timer {
	m.mut.Lock()
	defer m.mut.Unlock()
	t := &mockedTimer{
		deadline: m.now.Add(d),
		c:        make(chan time.Time, 1),
		src:      m,
	}
	m.timers = append(m.timers, t)
	return t
}

func (m *mockedTimeSource) NewTicker(d time.Duration) Ticker {
	m.mut.Lock()
	defer m.mut.Unlock()
	t := &mockedTimer{
		deadline: m.now.Add(d),
		period:   d,
		c:        make(chan time.Time, 1),
		src:      m,
	}
	m.timers = append(m.timers, t)
	return &mockedTicker{t: t}
}

func (m *mockedTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	m.mut.Lock()
	defer m.mut.Unlock()
	t := &mockedTimer{
		deadline: m.now.Add(d),
		fn:       f,
		src:      m,
	}
	m.timers = append(m.timers, t)
	return t
}

func (m *mockedTimeSource) Sleep(d time.Duration) {
	done := make(chan struct{})
	timer := m.NewTimer(d)
	go func() {
		<-timer.Chan()
		close(done)
	}()
	<-done
}

// Advance moves the clock forward by d and fires everything due by the new time.
func (m *mockedTimeSource) Advance(d time.Duration) {
	m.mut.Lock()
	m.now = m.now.Add(d)
	now := m.now
	var fire []*mockedTimer
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.stopped {
			continue
		}
		if !t.deadline.After(now) {
			fire = append(fire, t)
			if t.period > 0 {
				t.deadline = now.Add(t.period)
				live = append(live, t)
			}
		} else {
			live = append(live, t)
		}
	}
	m.timers = live
	m.mut.Unlock()

	for _, t := range fire {
		if t.fn != nil {
			t.fn()
			continue
		}
		select {
		case t.c <- now:
		default:
		}
	}
}

func (t *mockedTimer) Chan() <-chan time.Time { return t.c }

func (t *mockedTimer) Stop() bool {
	t.src.mut.Lock()
	defer t.src.mut.Unlock()
	wasLive := !t.stopped
	t.stopped = true
	return wasLive
}

func (t *mockedTimer) Reset(d time.Duration) bool {
	t.src.mut.Lock()
	defer t.src.mut.Unlock()
	wasLive := !t.stopped
	t.stopped = false
	t.deadline = t.src.now.Add(d)
	if !contains(t.src.timers, t) {
		t.src.timers = append(t.src.timers, t)
	}
	return wasLive
}

type mockedTicker struct {
	t *mockedTimer
}

func (m *mockedTicker) Chan() <-chan time.Time { return m.t.Chan() }
func (m *mockedTicker) Stop()                  { m.t.Stop() }
func (m *mockedTicker) Reset(d time.Duration)  { m.t.Reset(d) }

func contains(timers []*mockedTimer, t *mockedTimer) bool {
	for _, existing := range timers {
		if existing == t {
			return true
		}
	}
	return false
}
