// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

//go:build unix

package backend

import "golang.org/x/sys/unix"

func setPriority(pid int32, value int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, int(pid), value)
}
