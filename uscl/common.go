// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uscl

import "github.com/nviradia/scl/platform"

// spinThenYield is used in the fairlock's spin sites (Steps A, B, D, E, F):
// it busy-spins for a bounded number of iterations, doubling the spin count
// each call, and once attempts reaches limit it yields the processor
// instead of growing the spin further. Modeled on nsync's spinDelay, but
// parameterized on a caller-supplied limit rather than a fixed threshold;
// every spin site in this package passes SpinLimit.
//
// Usage:
//
//	var attempts uint
//	for try_something {
//		attempts = spinThenYield(attempts, SpinLimit)
//	}
func spinThenYield(attempts uint, limit int) uint {
	if attempts < uint(limit) {
		for i := 0; i != 1<<attempts; i++ {
		}
		attempts++
	} else {
		platform.Yield()
	}
	return attempts
}
