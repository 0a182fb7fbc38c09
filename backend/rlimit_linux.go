// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

//go:build linux

package backend

import "golang.org/x/sys/unix"

func getRlimit(pid int32, resource int) (Rlimit, error) {
	var cur unix.Rlimit
	if err := unix.Prlimit(int(pid), resource, nil, &cur); err != nil {
		return Rlimit{}, err
	}
	return Rlimit{Soft: cur.Cur, Hard: cur.Max}, nil
}

func setRlimit(pid int32, resource int, limit Rlimit) error {
	next := unix.Rlimit{Cur: limit.Soft, Max: limit.Hard}
	return unix.Prlimit(int(pid), resource, &next, nil)
}
