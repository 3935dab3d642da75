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

package loggerimpl

import (
	"fmt"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/zxfishhack/globaltagthrottler/common/log"
	"github.com/zxfishhack/globaltagthrottler/common/log/tag"
)

type loggerImpl struct {
	zapLogger *zap.Logger
	skip      int
}

const (
	skipForDefaultLogger = 3
	defaultMsgForEmpty   = "none"
)

// NewNopLogger returns a logger that discards everything, for tests that
// don't care about log output.
func NewNopLogger() log.Logger {
	return NewLogger(zap.NewNop())
}

// NewDevelopment returns a human-readable logger at debug level writing to stderr.
func NewDevelopment() (log.Logger, error) {
	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewLogger(zapLogger), nil
}

// NewLogger wraps an already-configured zap.Logger.
func NewLogger(zapLogger *zap.Logger) log.Logger {
	return &loggerImpl{
		zapLogger: zapLogger,
		skip:      skipForDefaultLogger,
	}
}

func caller(skip int) string {
	_, path, lineno, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v:%v", filepath.Base(path), lineno)
}

func (lg *loggerImpl) buildFieldsWithCallAt(tags []tag.Tag) []zap.Field {
	fs := lg.buildFields(tags)
	fs = append(fs, zap.String(tag.LoggingCallAtKey, caller(lg.skip)))
	return fs
}

func (lg *loggerImpl) buildFields(tags []tag.Tag) []zap.Field {
	fs := make([]zap.Field, 0, len(tags))
	for _, t := range tags {
		fs = append(fs, t.Field())
	}
	return fs
}

func setDefaultMsg(msg string) string {
	if msg == "" {
		return defaultMsgForEmpty
	}
	return msg
}

func (lg *loggerImpl) Debug(msg string, tags ...tag.Tag) {
	ce := lg.zapLogger.Check(zap.DebugLevel, setDefaultMsg(msg))
	if ce == nil {
		return
	}
	ce.Write(lg.buildFieldsWithCallAt(tags)...)
}

func (lg *loggerImpl) Info(msg string, tags ...tag.Tag) {
	lg.zapLogger.Info(setDefaultMsg(msg), lg.buildFieldsWithCallAt(tags)...)
}

func (lg *loggerImpl) Warn(msg string, tags ...tag.Tag) {
	lg.zapLogger.Warn(setDefaultMsg(msg), lg.buildFieldsWithCallAt(tags)...)
}

func (lg *loggerImpl) Error(msg string, tags ...tag.Tag) {
	lg.zapLogger.Error(setDefaultMsg(msg), lg.buildFieldsWithCallAt(tags)...)
}

func (lg *loggerImpl) Fatal(msg string, tags ...tag.Tag) {
	lg.zapLogger.Fatal(setDefaultMsg(msg), lg.buildFieldsWithCallAt(tags)...)
}

func (lg *loggerImpl) WithTags(tags ...tag.Tag) log.Logger {
	return &loggerImpl{
		zapLogger: lg.zapLogger.With(lg.buildFields(tags)...),
		skip:      lg.skip,
	}
}
