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

// Package backoff implements a small exponential-backoff retry policy, used
// by the quota watcher to retry transient failures against the external
// quota source without aborting its loop.
package backoff

import (
	"math"
	"math/rand"
	"time"

	"github.com/zxfishhack/globaltagthrottler/common/clock"
)

// NoInterval signals that a RetryPolicy should not cap total retry duration.
const NoInterval = 0 * time.Second

// IsRetryable decides whether an error observed by an operation should be retried.
type IsRetryable func(error) bool

// Operation is the unit of work retried by Retry.
type Operation func() error

// RetryPolicy computes successive backoff intervals for a retried operation.
type RetryPolicy interface {
	// ComputeNextDelay returns the delay before the next attempt, or -1 if no
	// further attempts should be made given elapsedTime and the attempt count.
	ComputeNextDelay(elapsedTime time.Duration, numAttempts int) time.Duration
}

type exponentialRetryPolicy struct {
	initialInterval    time.Duration
	backoffCoefficient float64
	maximumInterval    time.Duration
	expirationInterval time.Duration
	maximumAttempts    int
}

// NewExponentialRetryPolicy returns a policy starting at initialInterval,
// doubling by default on each attempt, with no caps until configured via the
// Set* builders.
func NewExponentialRetryPolicy(initialInterval time.Duration) *exponentialRetryPolicy {
	return &exponentialRetryPolicy{
		initialInterval:    initialInterval,
		backoffCoefficient: 2.0,
		maximumInterval:    NoInterval,
		expirationInterval: NoInterval,
		maximumAttempts:    0,
	}
}

func (p *exponentialRetryPolicy) SetBackoffCoefficient(c float64) *exponentialRetryPolicy {
	p.backoffCoefficient = c
	return p
}

func (p *exponentialRetryPolicy) SetMaximumInterval(d time.Duration) *exponentialRetryPolicy {
	p.maximumInterval = d
	return p
}

func (p *exponentialRetryPolicy) SetExpirationInterval(d time.Duration) *exponentialRetryPolicy {
	p.expirationInterval = d
	return p
}

func (p *exponentialRetryPolicy) SetMaximumAttempts(n int) *exponentialRetryPolicy {
	p.maximumAttempts = n
	return p
}

func (p *exponentialRetryPolicy) ComputeNextDelay(elapsedTime time.Duration, numAttempts int) time.Duration {
	if p.maximumAttempts > 0 && numAttempts >= p.maximumAttempts {
		return -1
	}
	if p.expirationInterval != NoInterval && elapsedTime > p.expirationInterval {
		return -1
	}
	delay := float64(p.initialInterval) * math.Pow(p.backoffCoefficient, float64(numAttempts))
	if p.maximumInterval != NoInterval && delay > float64(p.maximumInterval) {
		delay = float64(p.maximumInterval)
	}
	return time.Duration(delay)
}

// Retry invokes operation repeatedly until it succeeds, isRetryable says to
// stop retrying, or policy says no more attempts are allowed.
func Retry(operation Operation, policy RetryPolicy, isRetryable IsRetryable) error {
	return RetryWithTimeSource(clock.NewRealTimeSource(), operation, policy, isRetryable)
}

// RetryWithTimeSource is Retry with an injectable TimeSource, used by tests
// that need deterministic sleeps.
func RetryWithTimeSource(ts clock.TimeSource, operation Operation, policy RetryPolicy, isRetryable IsRetryable) error {
	start := ts.Now()
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		delay := policy.ComputeNextDelay(ts.Now().Sub(start), attempt)
		if delay < 0 {
			return lastErr
		}
		ts.Sleep(jitter(delay))
	}
}

// jitter spreads retries by up to 10% to avoid thundering-herd resynchronization.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}
