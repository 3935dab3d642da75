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

// Package tag defines the structured fields attachable to log.Logger calls.
package tag

import "go.uber.org/zap"

// LoggingCallAtKey is the field name under which the caller's file:line is recorded.
const LoggingCallAtKey = "logging-call-at"

// Tag is a structured key/value pair attachable to a log line. It adapts
// directly to a zap.Field so the logging implementation never branches on
// tag type.
type Tag interface {
	Field() zap.Field
}

type tagImpl struct {
	field zap.Field
}

func (t tagImpl) Field() zap.Field {
	return t.field
}

func stringTag(key, value string) Tag {
	return tagImpl{field: zap.String(key, value)}
}

func int64Tag(key string, value int64) Tag {
	return tagImpl{field: zap.Int64(key, value)}
}

func float64Tag(key string, value float64) Tag {
	return tagImpl{field: zap.Float64(key, value)}
}

func boolTag(key string, value bool) Tag {
	return tagImpl{field: zap.Bool(key, value)}
}

// Error wraps a Go error under the conventional "error" field.
func Error(err error) Tag {
	return tagImpl{field: zap.Error(err)}
}

// TransactionTag names the client-supplied transaction tag involved in an operation.
func TransactionTag(t string) Tag {
	return stringTag("tag", t)
}

// StorageServerID names the storage-server replica involved in an operation.
func StorageServerID(id string) Tag {
	return stringTag("storage-server-id", id)
}

// OpType names the READ/WRITE operation kind.
func OpType(op string) Tag {
	return stringTag("op-type", op)
}

// Priority names a transaction priority (batch/default).
func Priority(p string) Tag {
	return stringTag("priority", p)
}

// QuotaChangeID reports the watcher's monotonic quota generation counter.
func QuotaChangeID(id int64) Tag {
	return int64Tag("quota-change-id", id)
}

// Count reports a generic integer count, named by the caller's message.
func Count(n int) Tag {
	return int64Tag("count", int64(n))
}

// Rate reports a generic float rate, named by the caller's message.
func Rate(r float64) Tag {
	return float64Tag("rate", r)
}

// Attempt reports a retry attempt number.
func Attempt(n int) Tag {
	return int64Tag("attempt", int64(n))
}

// Value reports an arbitrary float value, named by the caller's message.
func Value(v float64) Tag {
	return float64Tag("value", v)
}

// Enabled reports a boolean feature/behavior flag.
func Enabled(b bool) Tag {
	return boolTag("enabled", b)
}
