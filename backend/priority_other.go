// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

//go:build !unix

package backend

func setPriority(pid int32, _ int) error {
	return NotImplemented(pid, "set nice")
}
