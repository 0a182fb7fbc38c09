// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level represents the logging level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warnings.
	LevelWarn
	// LevelError is for errors.
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Output formats accepted by Options.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// EnvDebug forces debug logging when set to "true".
const EnvDebug = "PROCSCOPE_DEBUG"

// Options configures the package logger.
type Options struct {
	Level  Level
	Format string    // FormatText (default) or FormatJSON
	Writer io.Writer // defaults to os.Stderr
}

var (
	mu           sync.RWMutex
	globalLogger *slog.Logger
	current      = Options{Level: LevelInfo, Format: FormatText, Writer: os.Stderr}
)

func init() {
	if err := Setup(current); err != nil {
		panic(err)
	}
}

// Setup replaces the package logger and the slog default.
// EnvDebug=true overrides opts.Level with LevelDebug.
// This function is safe for concurrent use.
func Setup(opts Options) error {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if os.Getenv(EnvDebug) == "true" {
		opts.Level = LevelDebug
	}

	hopts := &slog.HandlerOptions{Level: opts.Level.slog()}
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case FormatText:
		handler = slog.NewTextHandler(opts.Writer, hopts)
	case FormatJSON:
		handler = slog.NewJSONHandler(opts.Writer, hopts)
	default:
		return fmt.Errorf("unknown log format %q (want %q or %q)", opts.Format, FormatText, FormatJSON)
	}

	mu.Lock()
	defer mu.Unlock()
	current = opts
	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
	return nil
}

// SetOutput redirects the logger to w, keeping level and format.
// This is useful for testing.
func SetOutput(w io.Writer) {
	mu.RLock()
	opts := current
	mu.RUnlock()
	opts.Writer = w
	_ = Setup(opts)
}

// SetLevel changes the level, keeping output and format.
func SetLevel(level Level) {
	mu.RLock()
	opts := current
	mu.RUnlock()
	opts.Level = level
	_ = Setup(opts)
}

// GetLevel returns the current logging level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return current.Level
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	return GetLevel() == LevelDebug
}

// ParseLevel parses a string into a Level.
// Valid values are: "debug", "info", "warn", "warning", "error".
// Returns LevelInfo for unrecognized values.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Debug logs a debug message with optional key-value pairs.
//
// Example:
//
//	logutil.Debug("registry refreshed", "pids", n)
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
//
// Example:
//
//	logutil.Error("failed to list processes", "error", err)
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// Logger returns the underlying slog.Logger for advanced usage.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}
