// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package platform

// queryTopology has no NUMA source to query outside Linux; RW-SCL falls
// back to a single shared reader counter.
func queryTopology() *Topology {
	return SingleNodeTopology()
}
