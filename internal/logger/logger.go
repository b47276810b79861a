// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is the kernel's diagnostic console logger: a thin
// severity-leveled wrapper over log/slog, in text or json form,
// following the same severity vocabulary (TRACE..ERROR) the rest of
// the corpus uses for its daemon logs. Unlike a long-running FUSE
// daemon, the kernel never rotates its log to a file: its only sink is
// the process's stderr (standing in for the freestanding kernel's CGA
// console), so there is no log-rotation/file-management machinery
// here.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Severity levels, ordered the same way the corpus orders them: more
// verbose than slog's built-in four, with TRACE below DEBUG and OFF
// above ERROR.
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelOff   slog.Level = 16
)

const (
	Trace   = "TRACE"
	Debug   = "DEBUG"
	Info    = "INFO"
	Warning = "WARNING"
	Error   = "ERROR"
	Off     = "OFF"
)

var severityNames = map[string]slog.Level{
	Trace:   LevelTrace,
	Debug:   LevelDebug,
	Info:    LevelInfo,
	Warning: LevelWarn,
	Error:   LevelError,
	Off:     LevelOff,
}

type factory struct {
	level  *slog.LevelVar
	format string
	out    io.Writer
}

func newFactory(out io.Writer, format string, level string) *factory {
	lv := new(slog.LevelVar)
	lv.Set(severityLevel(level))
	return &factory{level: lv, format: format, out: out}
}

func severityLevel(name string) slog.Level {
	if lv, ok := severityNames[name]; ok {
		return lv
	}
	return LevelInfo
}

func (f *factory) handler() slog.Handler {
	opts := &slog.HandlerOptions{
		Level: f.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				a.Key = "severity"
				a.Value = slog.StringValue(levelName(a.Value.Any().(slog.Level)))
			}
			return a
		},
	}
	if f.format == "json" {
		return slog.NewJSONHandler(f.out, opts)
	}
	return slog.NewTextHandler(f.out, opts)
}

func levelName(l slog.Level) string {
	for name, lv := range severityNames {
		if lv == l {
			return name
		}
	}
	return l.String()
}

var defaultFactory = newFactory(os.Stderr, "text", Info)
var defaultLogger = slog.New(defaultFactory.handler())

// SetOutput redirects the kernel log sink (stderr by default); tests
// use it to capture log output.
func SetOutput(w io.Writer) {
	defaultFactory.out = w
	defaultLogger = slog.New(defaultFactory.handler())
}

// SetFormat selects "text" or "json" log rendering.
func SetFormat(format string) {
	defaultFactory.format = format
	defaultLogger = slog.New(defaultFactory.handler())
}

// SetLevel adjusts the minimum severity logged, without rebuilding the
// handler (so a live *slog.LevelVar keeps working across calls).
func SetLevel(level string) {
	defaultFactory.level.Set(severityLevel(level))
}

func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

func logf(level slog.Level, format string, args ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	defaultLogger.Log(context.Background(), level, msg)
}
