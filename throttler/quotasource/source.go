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

// Package quotasource defines the narrow interface the quota watcher uses
// to reload operator quotas from the transactional key-value store that
// owns them, plus a concrete implementation backed by MongoDB.
package quotasource

import "context"

// KeyValue is one row under the quota prefix.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Transaction is a read-only view into the quota source, opened with
// system-keys and lock-aware semantics so the watcher never blocks a writer
// and never competes with application transactions.
type Transaction interface {
	// GetRange returns every key/value pair whose key starts with prefix,
	// up to limit rows.
	GetRange(ctx context.Context, prefix []byte, limit int) ([]KeyValue, error)
}

// Source is the quota watcher's external collaborator: the transactional
// key-value store that persists operator quotas. The watcher does not
// write through this interface; quota edits made via the facade's
// SetQuota/RemoveQuota are in-memory only.
type Source interface {
	// OpenReadTx opens a read-only transaction with access-system-keys,
	// read-lock-aware, and priority-system-immediate semantics.
	OpenReadTx(ctx context.Context) (Transaction, error)
}
