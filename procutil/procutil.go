// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"math"

	"github.com/jongio/procscope/backend"
)

// IsProcessRunning checks if a process with the given PID exists.
// It asks the default backend, so stale PIDs are reported correctly on Windows
// as well.
//
// It answers for the pid only; use a Process handle to tell a live process from
// a later one that reused its pid.
func IsProcessRunning(pid int) bool {
	if pid <= 0 || pid > math.MaxInt32 {
		return false
	}
	ok, err := backend.Default().PidExists(context.Background(), int32(pid))
	return err == nil && ok
}
