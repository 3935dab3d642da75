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

// ThroughputCounters holds the two cost smoothers (one per OpType) tracked
// for a single (storage-server, tag) pair. Both run in total-replacing mode:
// each new sample overwrites the prior cost measurement rather than
// accumulating it.
type ThroughputCounters struct {
	readCost  *Smoother
	writeCost *Smoother
}

// NewThroughputCounters constructs a ThroughputCounters rooted at clock.Now().
func NewThroughputCounters(ts clock.TimeSource, foldingTime time.Duration) *ThroughputCounters {
	return &ThroughputCounters{
		readCost:  NewSmoother(ts, foldingTime),
		writeCost: NewSmoother(ts, foldingTime),
	}
}

func (c *ThroughputCounters) smoother(op OpType) *Smoother {
	if op == OpRead {
		return c.readCost
	}
	return c.writeCost
}

// UpdateCost records a new cost sample for op, replacing the prior total,
// and returns the delta from the previous total (offered for auditing; the
// calculus in this package does not consume it).
func (c *ThroughputCounters) UpdateCost(newCost float64, op OpType) float64 {
	s := c.smoother(op)
	delta := newCost - s.Total()
	s.SetTotal(newCost)
	return delta
}

// GetCost returns the smoothed cost rate for op.
func (c *ThroughputCounters) GetCost(op OpType) float64 {
	return c.smoother(op).SmoothedTotal()
}
