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

// Package dynamicconfig provides live-updatable scalar knobs for the
// throttler, following the Collection+Client+Key shape used elsewhere in
// this codebase so operators can override a knob without a restart.
package dynamicconfig

import (
	"sync/atomic"
	"time"

	"github.com/zxfishhack/globaltagthrottler/common/log"
	"github.com/zxfishhack/globaltagthrottler/common/log/tag"
)

const errCountLogThreshold = 1000

// IntPropertyFn returns a live int value.
type IntPropertyFn func() int

// FloatPropertyFn returns a live float64 value.
type FloatPropertyFn func() float64

// DurationPropertyFn returns a live time.Duration value.
type DurationPropertyFn func() time.Duration

// Collection wraps a Client with a closure so the value can be read directly
// without propagating the Client everywhere.
type Collection struct {
	client   Client
	logger   log.Logger
	errCount int64
}

// NewCollection creates a Collection reading from client, logging fetch
// failures (but never failing the read; a failure yields the key's default).
func NewCollection(client Client, logger log.Logger) *Collection {
	return &Collection{client: client, logger: logger, errCount: -1}
}

func (c *Collection) logError(key Key, err error) {
	errCount := atomic.AddInt64(&c.errCount, 1)
	if errCount%errCountLogThreshold == 0 {
		c.logger.Warn("failed to fetch dynamic config key, using default", tag.TransactionTag(key.String()), tag.Error(err))
	}
}

// GetIntProperty returns a closure that reads key.Int on each call.
func (c *Collection) GetIntProperty(key IntKey) IntPropertyFn {
	return func() int {
		val, err := c.client.GetIntValue(key)
		if err != nil {
			c.logError(key, err)
			return key.DefaultInt()
		}
		return val
	}
}

// GetFloatProperty returns a closure that reads key.Float on each call.
func (c *Collection) GetFloatProperty(key FloatKey) FloatPropertyFn {
	return func() float64 {
		val, err := c.client.GetFloatValue(key)
		if err != nil {
			c.logError(key, err)
			return key.DefaultFloat()
		}
		return val
	}
}

// GetDurationProperty returns a closure that reads key.Duration on each call.
func (c *Collection) GetDurationProperty(key DurationKey) DurationPropertyFn {
	return func() time.Duration {
		val, err := c.client.GetDurationValue(key)
		if err != nil {
			c.logError(key, err)
			return key.DefaultDuration()
		}
		return val
	}
}
