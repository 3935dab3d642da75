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

import (
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by a Client when a key has no override on file.
var ErrNotFound = errors.New("dynamicconfig: key not found")

// Key identifies a dynamic config knob.
type Key interface {
	String() string
}

// IntKey identifies an int-valued knob.
type IntKey int

// FloatKey identifies a float64-valued knob.
type FloatKey int

// DurationKey identifies a time.Duration-valued knob.
type DurationKey int

func (k IntKey) String() string      { return intKeys[k].name }
func (k FloatKey) String() string    { return floatKeys[k].name }
func (k DurationKey) String() string { return durationKeys[k].name }

// DefaultInt returns the key's hardcoded default, used whenever no override is on file.
func (k IntKey) DefaultInt() int { return intKeys[k].def }

// DefaultFloat returns the key's hardcoded default.
func (k FloatKey) DefaultFloat() float64 { return floatKeys[k].def }

// DefaultDuration returns the key's hardcoded default.
func (k DurationKey) DefaultDuration() time.Duration { return durationKeys[k].def }

// Client allows fetching live values of dynamic config keys, overridable
// without a process restart.
type Client interface {
	GetIntValue(key IntKey) (int, error)
	GetFloatValue(key FloatKey) (float64, error)
	GetDurationValue(key DurationKey) (time.Duration, error)
	UpdateValue(key Key, value interface{}) error
}

type inMemoryClient struct {
	mut    sync.RWMutex
	values map[Key]interface{}
}

// NewInMemoryClient returns a Client suitable for tests and for operators
// who manage overrides programmatically rather than via a config store.
func NewInMemoryClient() Client {
	return &inMemoryClient{values: make(map[Key]interface{})}
}

func (c *inMemoryClient) GetIntValue(key IntKey) (int, error) {
	c.mut.RLock()
	defer c.mut.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return 0, ErrNotFound
	}
	i, ok := v.(int)
	if !ok {
		return 0, ErrNotFound
	}
	return i, nil
}

func (c *inMemoryClient) GetFloatValue(key FloatKey) (float64, error) {
	c.mut.RLock()
	defer c.mut.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return 0, ErrNotFound
	}
	f, ok := v.(float64)
	if !ok {
		return 0, ErrNotFound
	}
	return f, nil
}

func (c *inMemoryClient) GetDurationValue(key DurationKey) (time.Duration, error) {
	c.mut.RLock()
	defer c.mut.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return 0, ErrNotFound
	}
	d, ok := v.(time.Duration)
	if !ok {
		return 0, ErrNotFound
	}
	return d, nil
}

func (c *inMemoryClient) UpdateValue(key Key, value interface{}) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.values[key] = value
	return nil
}

type nopClient struct{}

// NewNopClient returns a Client that never has overrides; every read falls
// back to the key's default.
func NewNopClient() Client {
	return nopClient{}
}

func (nopClient) GetIntValue(key IntKey) (int, error)            { return 0, ErrNotFound }
func (nopClient) GetFloatValue(key FloatKey) (float64, error)    { return 0, ErrNotFound }
func (nopClient) GetDurationValue(key DurationKey) (time.Duration, error) {
	return 0, ErrNotFound
}
func (nopClient) UpdateValue(key Key, value interface{}) error { return nil }
