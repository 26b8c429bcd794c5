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

// Package logger builds the structured slog.Logger the CLI entrypoint
// installs as slog's package-level default. Components that take a logger
// receive it explicitly; pkg/httpclient and the remote config providers log
// through the package-level default.
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/bmad-forge/bmad-core"

// ParseLevel converts a level name to a slog.Level. Unknown names fall back
// to warn rather than erroring.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Format selects how records are rendered.
type Format string

const (
	FormatSimple Format = "simple" // level + message + attrs
	FormatJSON   Format = "json"   // slog.JSONHandler
	FormatText   Format = "text"   // slog.TextHandler (time + level + message + attrs)
)

// Options configures New.
type Options struct {
	Level  slog.Level
	Output *os.File
	Format Format
	// Quiet suppresses records whose caller is outside this module unless
	// Level is debug or lower. Third-party dependency chatter (pgx, etcd,
	// consul) is noisy at info; this keeps operator logs on-topic.
	Quiet bool
}

// New builds a logger per Options. It never mutates slog's package-level
// default — callers that want that (the CLI entrypoint) do it explicitly
// with slog.SetDefault.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	var base slog.Handler
	switch opts.Format {
	case FormatJSON:
		base = slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: opts.Level})
	case FormatSimple:
		base = &simpleHandler{out: opts.Output, level: opts.Level}
	default:
		base = slog.NewTextHandler(opts.Output, &slog.HandlerOptions{Level: opts.Level})
	}
	if opts.Quiet {
		base = &moduleFilterHandler{handler: base, minLevel: opts.Level}
	}
	return slog.New(base)
}

// moduleFilterHandler drops records from outside this module's call stack
// unless the configured level is debug or finer, so third-party dependency
// logging (pgx pool chatter, consul client retries, etc.) doesn't drown out
// workflow/agent events at normal verbosity.
type moduleFilterHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *moduleFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *moduleFilterHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || fromModule(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *moduleFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &moduleFilterHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *moduleFilterHandler) WithGroup(name string) slog.Handler {
	return &moduleFilterHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func fromModule(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	return strings.Contains(fn.Name(), modulePrefix)
}

// simpleHandler renders "LEVEL message key=value ...\n" with no timestamp —
// useful for CLI output where the operator doesn't need wall-clock time.
type simpleHandler struct {
	out   *os.File
	level slog.Level
}

func (h *simpleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *simpleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(strings.ToUpper(record.Level.String()))
	b.WriteString(" ")
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.out.WriteString(b.String())
	return err
}

func (h *simpleHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *simpleHandler) WithGroup(_ string) slog.Handler      { return h }

// OpenLogFile opens (creating if needed) a log file for append output.
func OpenLogFile(path string) (*os.File, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// Nop returns a logger that discards everything, for tests and components
// constructed without an explicit logger.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
