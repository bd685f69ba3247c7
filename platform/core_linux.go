// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import "golang.org/x/sys/unix"

// NowWithCore reads the clock and the calling thread's current CPU/NUMA
// location, the Go analogue of rdtscp_(&chip, &core) in
// original_source/RW-SCL/rwlock.h.
func (c *Clock) NowWithCore() (Cycles, int, int) {
	var cpu, node int
	if err := unix.Getcpu(&cpu, &node); err != nil {
		return c.NowFenced(), 0, 0
	}
	return c.NowFenced(), node, cpu
}
