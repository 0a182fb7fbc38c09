// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package logutil provides the structured logging used across procscope,
// built on top of slog.
//
// # Basic Usage
//
//	// Initialize logging (typically once, from config)
//	err := logutil.Setup(logutil.Options{Level: logutil.LevelDebug, Format: logutil.FormatJSON})
//
//	// Log messages at different levels
//	logutil.Debug("sampled cpu times", "cpus", n)
//	logutil.Warn("backend circuit breaker open")
//
//	// Component-scoped loggers
//	log := logutil.NewLogger("registry").WithOperation("iter")
//	log.Debug("evicted", "pid", pid)
//
// # Debug Mode
//
// Debug logging can be enabled in two ways:
//   - Pass Level: LevelDebug to Setup
//   - Set PROCSCOPE_DEBUG=true environment variable
//
// # Structured Logging
//
// With Format: FormatJSON logs are output as JSON:
//
//	{"time":"2026-01-15T10:30:00Z","level":"DEBUG","msg":"evicted","component":"registry","pid":412}
//
// Otherwise, logs use a human-readable text format:
//
//	time=2026-01-15T10:30:00Z level=DEBUG msg=evicted component=registry pid=412
package logutil
