// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package backend defines the platform contract procscope is built on and its
// implementations.
//
// Backend combines three interfaces: ProcessSource for per-process reads,
// Controller for signals, priority, limits and exit waits, and SystemSource for
// system-wide CPU and memory figures. Every failure is an *Error carrying a Kind
// so callers can tell a vanished process from a permission problem:
//
//	switch backend.KindOf(err) {
//	case backend.KindNoSuchProcess:
//	    // gone, or its pid was reused
//	case backend.KindAccessDenied:
//	    // exists, but not readable by us
//	}
//
// # Implementations
//
//   - Gopsutil: the local machine, via github.com/shirou/gopsutil/v4 and
//     golang.org/x/sys for waits, priority and resource limits
//   - Guarded: a decorator adding a rate limiter (golang.org/x/time/rate) and a
//     circuit breaker (github.com/sony/gobreaker) around system-wide calls
//   - Fake: an in-memory process table for tests and simulations
package backend
