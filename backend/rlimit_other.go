// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

//go:build !linux

package backend

func getRlimit(pid int32, _ int) (Rlimit, error) {
	return Rlimit{}, NotImplemented(pid, "rlimit")
}

func setRlimit(pid int32, _ int, _ Rlimit) error {
	return NotImplemented(pid, "rlimit")
}
