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

package dynamicconfig

import "time"

// Int-valued keys.
const (
	QuotaWatcherRowCap IntKey = iota
)

// Float-valued keys.
const (
	SmootherFoldingTimeSeconds FloatKey = iota
	MinPerClientRate
)

// Duration-valued keys.
const (
	QuotaWatcherInterval DurationKey = iota
)

type intKeyDef struct {
	name string
	def  int
}

type floatKeyDef struct {
	name string
	def  float64
}

type durationKeyDef struct {
	name string
	def  time.Duration
}

var intKeys = map[IntKey]intKeyDef{
	QuotaWatcherRowCap: {
		name: "throttler.quotaWatcher.rowCap",
		def:  10000,
	},
}

var floatKeys = map[FloatKey]floatKeyDef{
	SmootherFoldingTimeSeconds: {
		name: "throttler.smoother.foldingTimeSeconds",
		def:  5.0,
	},
	MinPerClientRate: {
		name: "throttler.perClientStats.minRate",
		def:  1.0,
	},
}

var durationKeys = map[DurationKey]durationKeyDef{
	QuotaWatcherInterval: {
		name: "throttler.quotaWatcher.interval",
		def:  5 * time.Second,
	},
}
