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

// Package throttler implements the global tag throttler: a single-threaded
// control loop that turns operator quotas, storage-server cost telemetry,
// and storage-server health signals into per-tag, per-client transaction
// rate limits.
package throttler

// Tag is a client-supplied identifier grouping transactions for quota
// accounting. It has no structure beyond byte identity.
type Tag string

// ServerID identifies a storage-server replica.
type ServerID string

// OpType distinguishes read cost/quota from write cost/quota.
type OpType int

const (
	OpRead OpType = iota
	OpWrite
)

func (op OpType) String() string {
	if op == OpRead {
		return "read"
	}
	return "write"
}

// Priority distinguishes the two transaction priorities the frontend
// enforces limits for. Both receive the same published limit in this
// version; see Quota non-goals.
type Priority int

const (
	PriorityBatch Priority = iota
	PriorityDefault
)

// Quota is the operator-supplied cost budget for one tag, as persisted by
// the external quota source.
type Quota struct {
	TotalReadQuota     float64
	TotalWriteQuota    float64
	ReservedReadQuota  float64
	ReservedWriteQuota float64
}

// TotalQuota returns the quota ceiling for op.
func (q Quota) TotalQuota(op OpType) float64 {
	if op == OpRead {
		return q.TotalReadQuota
	}
	return q.TotalWriteQuota
}

// ReservedQuota returns the reserved floor for op.
func (q Quota) ReservedQuota(op OpType) float64 {
	if op == OpRead {
		return q.ReservedReadQuota
	}
	return q.ReservedWriteQuota
}

// TagSample is one busiest-tag sample reported by a storage server for a
// single operation kind. FractionalBusyness is intentionally unused by this
// throttler (see non-goals on distinct "busy tag" accounting).
type TagSample struct {
	Tag                Tag
	RateBytesPerSecond float64
	FractionalBusyness float64
}

// StorageQueueInfo is the telemetry record a storage server reports about
// its busiest tags, for both operation kinds.
type StorageQueueInfo struct {
	ServerID          ServerID
	BusiestReadTags   []TagSample
	BusiestWriteTags  []TagSample
}

// ClientTagThrottleLimits is the published limit for one tag: the TPS each
// client should self-enforce, with no expiration in this version.
type ClientTagThrottleLimits struct {
	TpsRate float64
}

// ClientRateMap is the snapshot handed to the frontend: priority to tag to
// limit. It is either empty (no overrides) or a complete, self-consistent
// cover of every tag with sufficient signal.
type ClientRateMap map[Priority]map[Tag]ClientTagThrottleLimits
