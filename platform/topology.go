// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import "sync"

// Topology maps a CPU core number to a NUMA node. RW-SCL hard-codes
// core<8⇒node 0, core<16⇒node 1 in the original source, silently dropping
// counter updates for cores >= 16 on larger machines. Per the design note
// "NUMA core → node mapping", a reimplementation must query topology at
// init and fall back to a single counter when topology can't be
// determined, rather than hard-coding a two-socket layout.
type Topology struct {
	numNodes int
	nodeOf   map[int]int // core -> node; absent entries fall back to node 0
}

var defaultTopologyOnce sync.Once
var defaultTopology *Topology

// DefaultTopology builds (and memoizes) the topology for the current
// machine by querying each core this process could plausibly run on. If
// core/node information is unavailable (e.g. non-Linux), it returns a
// single-node topology so RW-SCL degrades to one shared counter instead of
// silently dropping updates.
func DefaultTopology() *Topology {
	defaultTopologyOnce.Do(func() {
		defaultTopology = queryTopology()
	})
	return defaultTopology
}

// NumNodes returns the number of NUMA nodes this topology distinguishes.
// Always >= 1.
func (t *Topology) NumNodes() int {
	if t.numNodes < 1 {
		return 1
	}
	return t.numNodes
}

// Node returns the NUMA node for the given core, clamped into
// [0, NumNodes()).
func (t *Topology) Node(core int) int {
	if t.NumNodes() == 1 {
		return 0
	}
	if node, ok := t.nodeOf[core]; ok {
		return node
	}
	return 0
}

// SingleNodeTopology returns a degenerate topology with one node, used as
// the safe fallback and in tests that don't care about NUMA splitting.
func SingleNodeTopology() *Topology {
	return &Topology{numNodes: 1}
}
