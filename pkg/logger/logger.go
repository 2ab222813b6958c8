// Copyright 2025 Kadir Pekel
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

// Package logger provides the structured logger shared by every package in
// this module. It wraps log/slog and filters third-party library noise the
// same way the upstream framework's logger package does: third-party frames
// are only shown once the configured level reaches debug.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const modulePackagePrefix = "github.com/tavernkit/core"

func init() {
	defaultLogger = New(Options{Level: slog.LevelInfo, Writer: os.Stderr})
}

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown strings fall back to warn.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// Options configures a new logger.
type Options struct {
	Level  slog.Level
	Writer io.Writer
	JSON   bool
}

// New builds a slog.Logger with the module's filtering handler installed.
func New(opts Options) *slog.Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Writer, &slog.HandlerOptions{Level: opts.Level, AddSource: opts.Level <= slog.LevelDebug})
	} else {
		handler = slog.NewTextHandler(opts.Writer, &slog.HandlerOptions{Level: opts.Level, AddSource: opts.Level <= slog.LevelDebug})
	}
	return slog.New(&filteringHandler{handler: handler, minLevel: opts.Level})
}

// Default returns the process-wide default logger.
func Default() *slog.Logger { return defaultLogger }

// SetDefault replaces the process-wide default logger.
func SetDefault(l *slog.Logger) { defaultLogger = l }

// filteringHandler wraps a slog handler and hides non-module logs below
// debug level, so running with level=info doesn't drown in dependency
// chatter from e.g. tiktoken-go or fsnotify.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isModulePackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isModulePackage(pc uintptr) bool {
	if pc == 0 {
		return true
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return strings.Contains(frame.Function, modulePackagePrefix)
}
