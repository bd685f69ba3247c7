// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package platform

// NowWithCore reads the clock; chip/core identification has no portable
// source outside Linux, so it reports node/core 0 and RW-SCL's caller
// should rely on a single-node Topology in that case.
func (c *Clock) NowWithCore() (Cycles, int, int) {
	return c.NowFenced(), 0, 0
}
