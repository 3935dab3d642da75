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
	"math"
	"time"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
)

// Smoother turns a noisy stream of samples into a stable rate. It supports
// two independent modes against the same underlying clock:
//
//   - total-replacing: SetTotal(x) replaces the tracked total; SmoothedTotal
//     reports an exponentially-weighted view of it that reaches within 1/e
//     of a step change after one folding time.
//   - delta-accumulating: AddDelta(x) adds to the tracked total; SmoothedRate
//     reports an exponentially-weighted estimate of the rate at which deltas
//     arrive.
//
// A Smoother is not safe for concurrent use; the throttler facade serializes
// all access to it, matching the single-threaded cooperative model the rest
// of this package assumes.
type Smoother struct {
	clock clock.TimeSource
	tau   float64 // folding time, in seconds

	lastTime time.Time

	total         float64
	smoothedTotal float64

	pendingDelta float64
	smoothedRate float64
}

// NewSmoother constructs a Smoother whose origin is clock.Now(). foldingTime
// must be positive.
func NewSmoother(ts clock.TimeSource, foldingTime time.Duration) *Smoother {
	return &Smoother{
		clock:    ts,
		tau:      foldingTime.Seconds(),
		lastTime: ts.Now(),
	}
}

// advance folds elapsed time into both the total-replacing and
// delta-accumulating estimates, using the pre-mutation total/pendingDelta.
// Must be called before reading or mutating either estimate.
func (s *Smoother) advance(now time.Time) {
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed <= 0 {
		return
	}
	decay := math.Exp(-elapsed / s.tau)

	s.smoothedTotal = s.total - (s.total-s.smoothedTotal)*decay

	instantRate := s.pendingDelta / elapsed
	s.smoothedRate = weighted(instantRate, s.smoothedRate, 1-decay)

	s.pendingDelta = 0
	s.lastTime = now
}

// SetTotal replaces the underlying total. See total-replacing mode above.
func (s *Smoother) SetTotal(x float64) {
	s.advance(s.clock.Now())
	s.total = x
}

// AddDelta adds x to the underlying total. See delta-accumulating mode above.
func (s *Smoother) AddDelta(x float64) {
	s.advance(s.clock.Now())
	s.total += x
	s.pendingDelta += x
}

// SmoothedTotal returns the exponentially-weighted total.
func (s *Smoother) SmoothedTotal() float64 {
	s.advance(s.clock.Now())
	return s.smoothedTotal
}

// SmoothedRate returns the exponentially-weighted rate of delta arrival.
func (s *Smoother) SmoothedRate() float64 {
	s.advance(s.clock.Now())
	return s.smoothedRate
}

// Total returns the raw, unsmoothed underlying total.
func (s *Smoother) Total() float64 {
	return s.total
}

func weighted(newer, older, weight float64) float64 {
	return newer*weight + older*(1-weight)
}
